package causal

import (
	"math"
	"sort"
)

// mergeEval is one scored left→right node pairing.
type mergeEval struct {
	left  *Node
	right *Node
	cand  Candidate
}

// promoteSingletons gives every pool singleton a top-level node so it can
// compete in level-N pairing. Cause singletons already own their unclaimed
// level-1 node; effect singletons get one lazily here. Idempotent.
func (s *state) promoteSingletons() {
	for _, sg := range s.pool {
		if _, ok := s.byID[sg.ID]; ok {
			continue
		}
		n := &Node{
			ID:          sg.ID,
			Level:       1,
			Kind:        KindSingleton,
			CauseIndex:  sg.AnchorIndex,
			EffectIndex: -1,
			CauseText:   sg.Text,
			Claimed:     false,
			Mass:        sg.Mass,
			SpanStart:   sg.AnchorIndex,
			SpanEnd:     sg.AnchorIndex,
			CenterIndex: sg.AnchorIndex,
		}
		s.register(n)
		s.tokens[n.ID] = s.lineTokens[sg.AnchorIndex]
	}
}

// linkLevelN merges the current node set into composites. Unlike round 1,
// every above-threshold candidate competes in one global greedy pass rather
// than one nomination per node. The acceptance threshold grows with
// log(1+sqrt(massL*massR)): bigger, better-evidenced pairs need
// proportionally more evidence. Returns the merge count and strengths.
func (s *state) linkLevelN(round int) (int, []float64) {
	nodes := s.orderedNodes()

	var evals []mergeEval
	for li, left := range nodes {
		if left.Level >= s.p.MaxLevel {
			continue
		}
		considered := 0
		for ri := li + 1; ri < len(nodes) && considered < s.p.KLocalLinks; ri++ {
			right := nodes[ri]
			if right.Level >= s.p.MaxLevel {
				continue
			}
			d := float64(right.CenterIndex - left.CenterIndex)
			if d <= 0 {
				continue // same center: no order, no pairing
			}
			if d > float64(s.p.MaxForwardLines) {
				break // nodes are center-sorted, it only gets further
			}
			considered++
			lex := s.lex.Score(s.tokens[left.ID], s.tokens[right.ID])
			str := bridgeStrength(d, lex, s.p.TauLinks, s.p.Steepness, s.p.BetaLex)
			thr := s.p.MergeBase + s.p.MergeLogK*math.Log(1.0+math.Sqrt(left.Mass*right.Mass))
			ev := mergeEval{left: left, right: right, cand: Candidate{
				Target: right.ID, Distance: d, Lexical: lex, Strength: str, Threshold: thr,
			}}
			if str < thr {
				ev.cand.Reason = ReasonBelowThreshold
			}
			evals = append(evals, ev)
		}
	}

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
		if a.cand.Distance != b.cand.Distance {
			return a.cand.Distance < b.cand.Distance
		}
		if a.left.CenterIndex != b.left.CenterIndex {
			return a.left.CenterIndex < b.left.CenterIndex
		}
		if a.left.ID != b.left.ID {
			return a.left.ID < b.left.ID
		}
		return a.right.ID < b.right.ID
	})

	used := make(map[string]bool)
	var strengths []float64
	merges := 0
	for _, k := range order {
		ev := &evals[k]
		if used[ev.left.ID] || used[ev.right.ID] {
			ev.cand.Reason = ReasonPartnerClaimed
			continue
		}
		used[ev.left.ID] = true
		used[ev.right.ID] = true
		ev.cand.Chosen = true
		ev.cand.Reason = ReasonChosen
		s.merge(ev.left, ev.right, ev.cand)
		merges++
		strengths = append(strengths, ev.cand.Strength)
	}

	if s.cfg.traces {
		s.appendMergeTraces(evals, round)
	}
	return merges, strengths
}

// merge builds the composite for one accepted pairing. Level is the child
// maximum, promoted one step only when both children are composites; a
// bare singleton can never jump straight to the top level. Children at
// MaxLevel are filtered upstream, so promotion cannot overshoot.
func (s *state) merge(left, right *Node, cand Candidate) *Node {
	level := left.Level
	if right.Level > level {
		level = right.Level
	}
	if left.Kind == KindComposite && right.Kind == KindComposite {
		level++
	}

	spanStart := left.SpanStart
	if right.SpanStart < spanStart {
		spanStart = right.SpanStart
	}
	spanEnd := left.SpanEnd
	if right.SpanEnd > spanEnd {
		spanEnd = right.SpanEnd
	}

	s.seq++
	n := &Node{
		ID:               mergeID(s.seq),
		Level:            level,
		Kind:             KindComposite,
		CauseIndex:       left.CauseIndex,
		EffectIndex:      right.EffectAnchor(),
		CauseText:        truncate(sideText(left), sideTextCap),
		EffectText:       truncate(sideText(right), sideTextCap),
		Claimed:          true,
		StrengthBridge:   cand.Strength,
		StrengthInternal: cand.Strength + left.StrengthInternal + right.StrengthInternal,
		Mass:             left.Mass + right.Mass + cand.Strength,
		SpanStart:        spanStart,
		SpanEnd:          spanEnd,
		CenterIndex:      (spanStart + spanEnd) / 2,
		Members:          []string{left.ID, right.ID},
	}
	s.register(n)
	s.tokens[n.ID] = mergeTokens(s.tokens[left.ID], s.tokens[right.ID])
	delete(s.active, left.ID)
	delete(s.active, right.ID)
	s.removeFromPool(left.ID, right.ID)
	return n
}

func (s *state) appendMergeTraces(evals []mergeEval, round int) {
	for i := 0; i < len(evals); {
		j := i
		for j < len(evals) && evals[j].left.ID == evals[i].left.ID {
			j++
		}
		cands := make([]Candidate, 0, j-i)
		for _, ev := range evals[i:j] {
			cands = append(cands, ev.cand)
		}
		s.traces = append(s.traces, Trace{Round: round, Kind: "merge", Subject: evals[i].left.ID, Candidates: cands})
		i = j
	}
}

// sideText is the display text a node contributes when it becomes one side
// of a merge.
func sideText(n *Node) string {
	if n.Claimed && n.EffectText != "" {
		return n.CauseText + " / " + n.EffectText
	}
	return n.CauseText
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
