package causal

import (
	"errors"
	"fmt"
)

// Boundary sentinels. Input-shape problems from the transcript package pass
// through with their own sentinels; these cover what only this package can
// judge.
var (
	// ErrInvalidParams reports parameters rejected by Params.Validate.
	ErrInvalidParams = errors.New("causal: invalid parameters")

	// ErrNilRegistry reports a missing actor registry.
	ErrNilRegistry = errors.New("causal: nil actor registry")
)

// NodeKind tags the two node variants: a singleton wraps one residual line,
// a composite is a claimed pairing (a level-1 link or a merge of two nodes).
type NodeKind string

const (
	KindSingleton NodeKind = "singleton"
	KindComposite NodeKind = "composite"
)

// Node is the central unit at every level of the hierarchy.
//
// For singleton nodes CauseIndex holds the single anchor line and
// EffectIndex is -1. For composites both anchors are set and the cause
// anchor always precedes the effect anchor. Kind == KindComposite exactly
// when Claimed is true; both fields exist because serialized consumers key
// on either.
type Node struct {
	ID    string   `json:"id"`
	Level int      `json:"level"`
	Kind  NodeKind `json:"node_kind"`

	CauseIndex  int    `json:"cause_anchor_index"`
	EffectIndex int    `json:"effect_anchor_index"` // -1 when unclaimed
	CauseText   string `json:"cause_text"`
	EffectText  string `json:"effect_text,omitempty"`
	Claimed     bool   `json:"claimed"`

	// StrengthBridge is the evidence score that justified creating this
	// node; StrengthInternal adds both children's internal strength for
	// composites.
	StrengthBridge   float64 `json:"strength_bridge"`
	StrengthInternal float64 `json:"strength_internal"`

	// Mass is the additive evidence weight, grown by pairing and by
	// absorption. MassBoost tracks only the absorbed share, for diagnostics.
	Mass      float64 `json:"mass"`
	MassBoost float64 `json:"mass_boost,omitempty"`

	// Span and centroid in line-index space, used by higher rounds.
	SpanStart   int `json:"span_start_index"`
	SpanEnd     int `json:"span_end_index"`
	CenterIndex int `json:"center_index"`

	// ContextLines lists raw line indices absorbed as context, ascending.
	ContextLines []int `json:"context_line_indices,omitempty"`

	// Members lists child node ids, for composites created by a merge.
	Members []string `json:"members,omitempty"`
}

// EffectAnchor returns the line anchoring this node's effect side: the
// effect anchor when claimed, otherwise the sole anchor. Used when the node
// plays the right role in a merge.
func (n *Node) EffectAnchor() int {
	if n.EffectIndex >= 0 {
		return n.EffectIndex
	}
	return n.CauseIndex
}

// Clone returns an independent deep copy, used for round snapshots.
func (n *Node) Clone() Node {
	out := *n
	if n.ContextLines != nil {
		out.ContextLines = append([]int(nil), n.ContextLines...)
	}
	if n.Members != nil {
		out.Members = append([]string(nil), n.Members...)
	}
	return out
}

// SingletonKind records which role a residual line failed to fill.
type SingletonKind string

const (
	SingletonCause  SingletonKind = "cause"
	SingletonEffect SingletonKind = "effect"
)

// Singleton is an unpaired residual line awaiting absorption or merging.
// Cause singletons share their id with the unclaimed level-1 node for the
// same line; effect singletons receive a node lazily when promoted into the
// round-2 pairing set.
type Singleton struct {
	ID          string        `json:"id"`
	Kind        SingletonKind `json:"kind"`
	AnchorIndex int           `json:"anchor_index"`
	Text        string        `json:"text"`
	Mass        float64       `json:"mass"`
}

// ContextEdge records one absorption: which singleton went into which node,
// with the evidence that justified it.
type ContextEdge struct {
	SingletonID string  `json:"singleton_id"`
	NodeID      string  `json:"link_id"`
	Strength    float64 `json:"strength_ctx"`
	Distance    float64 `json:"distance"`
	Lexical     float64 `json:"lexical"`
	Round       int     `json:"round"`
}

// Node id helpers. Ids are deterministic: level-1 nodes are named by their
// cause anchor, effect singletons by their anchor, merges by creation order.
func linkID(causeIdx int) string { return fmt.Sprintf("l-%05d", causeIdx) }

func effectID(anchorIdx int) string { return fmt.Sprintf("s-%05d", anchorIdx) }

func mergeID(seq int) string { return fmt.Sprintf("m-%05d", seq) }
