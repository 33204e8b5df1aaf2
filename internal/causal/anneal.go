package causal

import (
	"math"
	"sort"
)

// absorbEval is one scored singleton→link option.
type absorbEval struct {
	sing   *Singleton
	target *Node
	cand   Candidate
}

// anneal attaches pool singletons to composite links as context. Reach and
// room both scale with link mass: radius = RadiusBase + RadiusPerMass*mass,
// capacity = floor(CapBase + CapPerMass*mass) minus lines already absorbed.
// Both are evaluated against mass at round entry, so absorptions landing in
// this round extend reach only from the next round on. Returns the
// absorption count and the accepted strengths.
func (s *state) anneal(round int) (int, []float64) {
	targets := s.compositeTargets()
	if len(targets) == 0 || len(s.pool) == 0 {
		return 0, nil
	}

	remaining := make(map[string]int, len(targets))
	for _, t := range targets {
		capacity := int(math.Floor(s.p.CapBase+s.p.CapPerMass*t.Mass)) - len(t.ContextLines)
		if capacity < 0 {
			capacity = 0
		}
		remaining[t.ID] = capacity
	}

	var evals []absorbEval
	for _, sg := range s.pool {
		thr := s.p.AbsorbBase + s.p.AbsorbPerLogMass*math.Log(1.0+sg.Mass)
		for _, t := range targets {
			d := math.Abs(float64(sg.AnchorIndex - t.CenterIndex))
			if d > s.p.RadiusBase+s.p.RadiusPerMass*t.Mass {
				continue
			}
			lex := s.lex.Score(s.lineTokens[sg.AnchorIndex], s.tokens[t.ID])
			str := bridgeStrength(d, lex, s.p.Tau, s.p.Steepness, s.p.BetaLex)
			ev := absorbEval{sing: sg, target: t, cand: Candidate{
				Target: t.ID, Distance: d, Lexical: lex, Strength: str, Threshold: thr,
			}}
			if str < thr {
				ev.cand.Reason = ReasonBelowThreshold
			}
			evals = append(evals, ev)
		}
	}

	// Strongest evidence first; heavier singletons break ties, then
	// proximity, then ids.
	order := make([]int, 0, len(evals))
	for k := range evals {
		if evals[k].cand.Reason == "" {
			order = append(order, k)
		}
	}
	sort.SliceStable(order, func(x, y int) bool {
		a, b := evals[order[x]], evals[order[y]]
		if a.cand.Strength != b.cand.Strength {
			return a.cand.Strength > b.cand.Strength
		}
		if a.sing.Mass != b.sing.Mass {
			return a.sing.Mass > b.sing.Mass
		}
		if a.cand.Distance != b.cand.Distance {
			return a.cand.Distance < b.cand.Distance
		}
		if a.sing.ID != b.sing.ID {
			return a.sing.ID < b.sing.ID
		}
		return a.target.ID < b.target.ID
	})

	absorbed := make(map[string]bool)
	var strengths []float64
	for _, k := range order {
		ev := &evals[k]
		switch {
		case absorbed[ev.sing.ID]:
			ev.cand.Reason = ReasonAbsorbedElsewhere
		case remaining[ev.target.ID] <= 0:
			ev.cand.Reason = ReasonOverCapacity
		default:
			remaining[ev.target.ID]--
			absorbed[ev.sing.ID] = true
			ev.cand.Chosen = true
			ev.cand.Reason = ReasonChosen
			s.absorb(ev.sing, ev.target, ev.cand, round)
			strengths = append(strengths, ev.cand.Strength)
		}
	}

	if len(absorbed) > 0 {
		kept := s.pool[:0]
		for _, sg := range s.pool {
			if !absorbed[sg.ID] {
				kept = append(kept, sg)
			}
		}
		s.pool = kept
	}
	if s.cfg.traces {
		s.appendAbsorbTraces(evals, round)
	}
	return len(absorbed), strengths
}

// absorb commits one assignment: mass moves to the link, the line index is
// recorded as context, and the singleton leaves the top level for good.
func (s *state) absorb(sg *Singleton, t *Node, cand Candidate, round int) {
	t.Mass += sg.Mass
	t.MassBoost += sg.Mass
	t.ContextLines = insertSorted(t.ContextLines, sg.AnchorIndex)
	s.tokens[t.ID] = mergeTokens(s.tokens[t.ID], s.lineTokens[sg.AnchorIndex])
	s.edges = append(s.edges, ContextEdge{
		SingletonID: sg.ID,
		NodeID:      t.ID,
		Strength:    cand.Strength,
		Distance:    cand.Distance,
		Lexical:     cand.Lexical,
		Round:       round,
	})
	delete(s.active, sg.ID) // promoted node, when one exists, leaves the top level
}

// compositeTargets returns the current composite links in center order.
// Singleton nodes never absorb: they are themselves pool members.
func (s *state) compositeTargets() []*Node {
	var out []*Node
	for id := range s.active {
		if n := s.byID[id]; n != nil && n.Kind == KindComposite {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CenterIndex != out[j].CenterIndex {
			return out[i].CenterIndex < out[j].CenterIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) appendAbsorbTraces(evals []absorbEval, round int) {
	for i := 0; i < len(evals); {
		j := i
		for j < len(evals) && evals[j].sing.ID == evals[i].sing.ID {
			j++
		}
		cands := make([]Candidate, 0, j-i)
		for _, ev := range evals[i:j] {
			cands = append(cands, ev.cand)
		}
		s.traces = append(s.traces, Trace{Round: round, Kind: "absorb", Subject: evals[i].sing.ID, Candidates: cands})
		i = j
	}
}

func insertSorted(xs []int, v int) []int {
	i := sort.SearchInts(xs, v)
	xs = append(xs, 0)
	copy(xs[i+1:], xs[i:])
	xs[i] = v
	return xs
}
