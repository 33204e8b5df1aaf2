package causal

import (
	"sort"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

// lineRole is the round-1 classification of a line. Only eligible lines get
// a role: narrator lines are candidate effects, registered actor lines are
// candidate causes, everything else stays out of round 1.
type lineRole uint8

const (
	roleNone lineRole = iota
	roleCause
	roleEffect
)

// nomination is one cause's best forward effect, pending global resolution.
type nomination struct {
	causeIdx  int
	effectIdx int
	distance  float64
	lexical   float64
	strength  float64
	threshold float64
}

type traceRef struct {
	trace int
	cand  int
}

func (s *state) classifyLines() []lineRole {
	roles := make([]lineRole, len(s.in.Lines))
	for i, ln := range s.in.Lines {
		if !s.in.Mask.IsEligible(i) {
			continue
		}
		if s.in.Actors.IsNarrator(ln.Author) {
			roles[i] = roleEffect
			continue
		}
		if _, ok := s.in.Actors.Resolve(ln.Author); ok {
			roles[i] = roleCause
		}
	}
	return roles
}

// linkLevel1 runs the round-1 pairing: every cause nominates its single best
// forward effect within KLocal lines, nominations are resolved globally so
// competing causes for one effect are decided by evidence rather than scan
// order, and the leftovers seed the singleton pool. Returns the claimed pair
// count and their bridge strengths.
func (s *state) linkLevel1() (int, []float64) {
	roles := s.classifyLines()

	var noms []nomination
	pending := make(map[int]traceRef)

	for i := range s.in.Lines {
		if roles[i] != roleCause {
			continue
		}
		thr := s.p.ThresholdWeak
		if s.in.Classes.ClassOf(i) == transcript.CauseStrong {
			thr = s.p.ThresholdStrong
		}

		var cands []Candidate
		var effects []int
		best := -1
		for j := i + 1; j <= i+s.p.KLocal && j < len(s.in.Lines); j++ {
			if roles[j] != roleEffect {
				continue
			}
			d := float64(j - i)
			lex := s.lex.Score(s.lineTokens[i], s.lineTokens[j])
			str := bridgeStrength(d, lex, s.p.Tau, s.p.Steepness, s.p.BetaLex)
			cands = append(cands, Candidate{
				Target: lineRef(j), Distance: d, Lexical: lex, Strength: str, Threshold: thr,
			})
			effects = append(effects, j)
			// Strict improvement keeps the nearest effect on strength ties,
			// since distance grows with j.
			if str >= thr && (best < 0 || str > cands[best].Strength) {
				best = len(cands) - 1
			}
		}

		for k := range cands {
			switch {
			case cands[k].Strength < thr:
				cands[k].Reason = ReasonBelowThreshold
			case k != best:
				cands[k].Reason = ReasonOutscored
			}
		}
		if best >= 0 {
			noms = append(noms, nomination{
				causeIdx:  i,
				effectIdx: effects[best],
				distance:  cands[best].Distance,
				lexical:   cands[best].Lexical,
				strength:  cands[best].Strength,
				threshold: thr,
			})
		}
		if s.cfg.traces {
			s.traces = append(s.traces, Trace{Round: 1, Kind: "pair", Subject: linkID(i), Candidates: cands})
			if best >= 0 {
				pending[i] = traceRef{trace: len(s.traces) - 1, cand: best}
			}
		}
	}

	// Global resolution. A cause that loses its nominated effect stays
	// unclaimed; there is no second-best retry.
	sort.SliceStable(noms, func(a, b int) bool {
		na, nb := noms[a], noms[b]
		if na.strength != nb.strength {
			return na.strength > nb.strength
		}
		if na.distance != nb.distance {
			return na.distance < nb.distance
		}
		return na.causeIdx < nb.causeIdx // id order: linkID is monotone in index
	})

	effectTaken := make(map[int]bool)
	wonEffect := make(map[int]int)
	var strengths []float64
	pairs := 0
	for _, nm := range noms {
		if effectTaken[nm.effectIdx] {
			continue
		}
		effectTaken[nm.effectIdx] = true
		wonEffect[nm.causeIdx] = nm.effectIdx
		s.addL1Link(nm)
		pairs++
		strengths = append(strengths, nm.strength)
	}

	// Residuals: unmatched causes become unclaimed nodes plus pool
	// singletons; never-claimed narrator lines join the pool as effects.
	for i := range s.in.Lines {
		switch roles[i] {
		case roleCause:
			if _, won := wonEffect[i]; !won {
				s.addCauseResidual(i)
			}
		case roleEffect:
			if !effectTaken[i] {
				s.addEffectResidual(i)
			}
		}
	}

	if s.cfg.traces {
		for causeIdx, ref := range pending {
			c := &s.traces[ref.trace].Candidates[ref.cand]
			if _, won := wonEffect[causeIdx]; won {
				c.Chosen = true
				c.Reason = ReasonChosen
			} else {
				c.Reason = ReasonEffectClaimed
			}
		}
	}
	return pairs, strengths
}

func (s *state) addL1Link(nm nomination) {
	i, j := nm.causeIdx, nm.effectIdx
	n := &Node{
		ID:               linkID(i),
		Level:            1,
		Kind:             KindComposite,
		CauseIndex:       i,
		EffectIndex:      j,
		CauseText:        s.in.Lines[i].Content,
		EffectText:       s.in.Lines[j].Content,
		Claimed:          true,
		StrengthBridge:   nm.strength,
		StrengthInternal: nm.strength,
		Mass:             2*lineMass + nm.strength,
		SpanStart:        i,
		SpanEnd:          j,
		CenterIndex:      (i + j) / 2,
	}
	s.register(n)
	s.tokens[n.ID] = mergeTokens(s.lineTokens[i], s.lineTokens[j])
}

func (s *state) addCauseResidual(i int) {
	n := &Node{
		ID:          linkID(i),
		Level:       1,
		Kind:        KindSingleton,
		CauseIndex:  i,
		EffectIndex: -1,
		CauseText:   s.in.Lines[i].Content,
		Claimed:     false,
		Mass:        lineMass,
		SpanStart:   i,
		SpanEnd:     i,
		CenterIndex: i,
	}
	s.register(n)
	s.tokens[n.ID] = s.lineTokens[i]
	s.pool = append(s.pool, &Singleton{
		ID:          n.ID,
		Kind:        SingletonCause,
		AnchorIndex: i,
		Text:        s.in.Lines[i].Content,
		Mass:        lineMass,
	})
}

func (s *state) addEffectResidual(j int) {
	s.pool = append(s.pool, &Singleton{
		ID:          effectID(j),
		Kind:        SingletonEffect,
		AnchorIndex: j,
		Text:        s.in.Lines[j].Content,
		Mass:        lineMass,
	})
}
