package causal

import (
	"math"
	"sort"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

// lineMass is the evidentiary weight of one raw transcript line.
const lineMass = 1.0

// sideTextCap bounds display text carried up merge levels.
const sideTextCap = 160

// Input bundles the externally provided session data. The engine consumes
// it read-only; nothing here is computed inside the core.
type Input struct {
	Lines   []transcript.Line
	Mask    transcript.Mask
	Actors  *transcript.Registry
	Classes transcript.CauseClasses
}

// Metrics summarizes one round. The strength distribution covers the
// evidence accepted in that round (new bridges and absorptions); a round
// that accepted nothing reports zeros.
type Metrics struct {
	Nodes          int     `json:"nodes"`
	Pairs          int     `json:"pairs"`
	Absorptions    int     `json:"absorptions"`
	StrengthMin    float64 `json:"strength_min"`
	StrengthMedian float64 `json:"strength_median"`
	StrengthP90    float64 `json:"strength_p90"`
	StrengthMax    float64 `json:"strength_max"`
}

// Round is the full state snapshot after one orchestrator round. Round 1
// nodes are the level-1 links (claimed and unclaimed); later rounds carry
// the whole pairing set, promoted singletons included.
type Round struct {
	Number        int           `json:"round"`
	Nodes         []Node        `json:"nodes"`
	Pool          []Singleton   `json:"pool,omitempty"`
	Edges         []ContextEdge `json:"edges,omitempty"`
	NewComposites int           `json:"new_composites"`
	Absorptions   int           `json:"absorptions"`
	Metrics       Metrics       `json:"metrics"`
}

// Result is everything a run produced. Unclaimed nodes and the unabsorbed
// pool are first-class output: audit tooling depends on seeing exactly what
// was left unresolved.
type Result struct {
	Provenance Provenance    `json:"provenance"`
	Rounds     []Round       `json:"rounds"`
	Nodes      []Node        `json:"nodes"`
	Unabsorbed []Singleton   `json:"unabsorbed,omitempty"`
	Edges      []ContextEdge `json:"edges,omitempty"`
	Traces     []Trace       `json:"traces,omitempty"`
}

// state is the per-run working set. It lives for exactly one Run call and
// is never shared.
type state struct {
	p   Params
	cfg runConfig
	in  Input

	lex        *Lexicon
	lineTokens [][]string

	byID   map[string]*Node
	tokens map[string][]string // node id -> aggregate token set
	active map[string]bool     // current top-level node ids
	pool   []*Singleton        // unabsorbed residuals, anchor order
	edges  []ContextEdge
	traces []Trace
	seq    int // merge id counter
}

func newState(in Input, p Params, cfg runConfig) *state {
	s := &state{
		p:      p,
		cfg:    cfg,
		in:     in,
		lex:    BuildLexicon(in.Lines, p.UseIDF),
		byID:   make(map[string]*Node),
		tokens: make(map[string][]string),
		active: make(map[string]bool),
	}
	s.lineTokens = make([][]string, len(in.Lines))
	for i, ln := range in.Lines {
		s.lineTokens[i] = s.lex.Tokenize(ln.Content)
	}
	return s
}

func (s *state) register(n *Node) {
	s.byID[n.ID] = n
	s.active[n.ID] = true
}

// orderedNodes returns the current top-level set in canonical order:
// center, then span start, then id. Every consumer of the node set uses
// this one ordering.
func (s *state) orderedNodes() []*Node {
	out := make([]*Node, 0, len(s.active))
	for id := range s.active {
		out = append(out, s.byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CenterIndex != out[j].CenterIndex {
			return out[i].CenterIndex < out[j].CenterIndex
		}
		if out[i].SpanStart != out[j].SpanStart {
			return out[i].SpanStart < out[j].SpanStart
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) removeFromPool(ids ...string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.pool[:0]
	for _, sg := range s.pool {
		if !drop[sg.ID] {
			kept = append(kept, sg)
		}
	}
	s.pool = kept
}

func (s *state) snapshotRound(number, newComposites, absorbed int, strengths []float64) Round {
	live := s.orderedNodes()
	nodes := make([]Node, len(live))
	for i, n := range live {
		nodes[i] = n.Clone()
	}
	pool := make([]Singleton, len(s.pool))
	for i, sg := range s.pool {
		pool[i] = *sg
	}
	var edges []ContextEdge
	for _, e := range s.edges {
		if e.Round == number {
			edges = append(edges, e)
		}
	}

	m := Metrics{Nodes: len(nodes), Pairs: newComposites, Absorptions: absorbed}
	m.StrengthMin, m.StrengthMedian, m.StrengthP90, m.StrengthMax = distribution(strengths)

	return Round{
		Number:        number,
		Nodes:         nodes,
		Pool:          pool,
		Edges:         edges,
		NewComposites: newComposites,
		Absorptions:   absorbed,
		Metrics:       m,
	}
}

func distribution(xs []float64) (min, median, p90, max float64) {
	if len(xs) == 0 {
		return
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	min, max = sorted[0], sorted[n-1]
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	idx := int(math.Ceil(0.9*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	p90 = sorted[idx]
	return
}

// Run executes the full extraction: Level-1 link → anneal, then Level-N
// link → anneal for rounds 2..MaxRounds. With EarlyStop set, a round that
// produces zero new composites and zero absorptions ends the run early;
// that round is still recorded. All validation happens up front; after the
// first scoring step no error paths remain.
func Run(in Input, p Params, opts ...Option) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if in.Actors == nil {
		return nil, ErrNilRegistry
	}
	if err := transcript.ValidateLines(in.Lines); err != nil {
		return nil, err
	}
	if err := in.Mask.Validate(len(in.Lines)); err != nil {
		return nil, err
	}
	if err := in.Classes.Validate(len(in.Lines)); err != nil {
		return nil, err
	}
	prov, err := NewProvenance(p)
	if err != nil {
		return nil, err
	}

	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s := newState(in, p, cfg)
	res := &Result{Provenance: prov}

	pairs, pairStrengths := s.linkLevel1()
	absorbed, absorbStrengths := s.anneal(1)
	res.Rounds = append(res.Rounds, s.snapshotRound(1, pairs, absorbed, append(pairStrengths, absorbStrengths...)))

	for r := 2; r <= p.MaxRounds; r++ {
		s.promoteSingletons()
		merges, mergeStrengths := s.linkLevelN(r)
		absorbed, absorbStrengths := s.anneal(r)
		res.Rounds = append(res.Rounds, s.snapshotRound(r, merges, absorbed, append(mergeStrengths, absorbStrengths...)))
		if p.EarlyStop && merges == 0 && absorbed == 0 {
			break
		}
	}

	last := res.Rounds[len(res.Rounds)-1]
	res.Nodes = make([]Node, len(last.Nodes))
	for i := range last.Nodes {
		res.Nodes[i] = last.Nodes[i].Clone()
	}
	res.Unabsorbed = append([]Singleton(nil), last.Pool...)
	res.Edges = append([]ContextEdge(nil), s.edges...)
	if cfg.traces {
		res.Traces = s.traces
	}
	return res, nil
}
