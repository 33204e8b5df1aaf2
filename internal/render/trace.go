package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/store"
)

// DefaultTraceDepth bounds the neighbor trace when the caller does not.
const DefaultTraceDepth = 2

// relation is one labeled step away from a node in the hierarchy.
type relation struct {
	id     string
	label  string
	detail string
}

// NeighborTrace renders the hierarchy around one node as indented text: a
// breadth-first walk over member and context relations with an explicit
// visited set, bounded by depth.
func NeighborTrace(run *store.Run, nodeID string, depth int) (string, error) {
	if depth <= 0 {
		depth = DefaultTraceDepth
	}

	nodesByID := make(map[string]*causal.Node)
	for i := range run.Nodes {
		nodesByID[run.Nodes[i].ID] = &run.Nodes[i]
	}
	singletonsByID := make(map[string]*causal.Singleton)
	for i := range run.Unabsorbed {
		singletonsByID[run.Unabsorbed[i].ID] = &run.Unabsorbed[i]
	}

	if _, ok := nodesByID[nodeID]; !ok {
		if _, ok := singletonsByID[nodeID]; !ok {
			return "", fmt.Errorf("node %s not found in run %s", nodeID, run.Info.ID)
		}
	}

	adj := buildAdjacency(run)

	var b strings.Builder
	visited := map[string]bool{}
	type item struct {
		id    string
		depth int
		via   string
	}
	queue := []item{{id: nodeID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		indent := strings.Repeat("  ", cur.depth)
		label := describe(cur.id, run, nodesByID, singletonsByID)
		if cur.via == "" {
			fmt.Fprintf(&b, "%s%s\n", indent, label)
		} else {
			fmt.Fprintf(&b, "%s%s %s\n", indent, cur.via, label)
		}

		if cur.depth == depth {
			continue
		}
		for _, rel := range adj[cur.id] {
			if !visited[rel.id] {
				via := rel.label
				if rel.detail != "" {
					via = fmt.Sprintf("%s (%s)", rel.label, rel.detail)
				}
				queue = append(queue, item{id: rel.id, depth: cur.depth + 1, via: via})
			}
		}
	}

	return b.String(), nil
}

// buildAdjacency maps every node and singleton to its labeled neighbors:
// member relations in both directions, context absorptions in both
// directions. Neighbor lists are sorted for deterministic walks.
func buildAdjacency(run *store.Run) map[string][]relation {
	adj := make(map[string][]relation)
	add := func(from, to, label, detail string) {
		adj[from] = append(adj[from], relation{id: to, label: label, detail: detail})
	}

	for _, n := range run.Nodes {
		for _, child := range n.Members {
			add(n.ID, child, "member", "")
			add(child, n.ID, "member of", "")
		}
	}
	for _, e := range run.Edges {
		detail := fmt.Sprintf("strength %.3f", e.Strength)
		add(e.NodeID, e.SingletonID, "context", detail)
		add(e.SingletonID, e.NodeID, "context of", detail)
	}

	for id := range adj {
		rels := adj[id]
		sort.Slice(rels, func(i, j int) bool {
			if rels[i].label != rels[j].label {
				return rels[i].label < rels[j].label
			}
			return rels[i].id < rels[j].id
		})
	}
	return adj
}

// describe renders one id with whatever the run knows about it. Absorbed
// singletons and merged-away children are no longer first-class rows, but
// line-anchored ids (l-NNNNN, s-NNNNN) still resolve to their line.
func describe(id string, run *store.Run, nodes map[string]*causal.Node, singletons map[string]*causal.Singleton) string {
	if n, ok := nodes[id]; ok {
		if n.Claimed {
			return fmt.Sprintf("%s level %d mass %.1f: %s -> %s",
				n.ID, n.Level, n.Mass, truncate(n.CauseText, 40), truncate(n.EffectText, 40))
		}
		return fmt.Sprintf("%s level %d mass %.1f: %s",
			n.ID, n.Level, n.Mass, truncate(n.CauseText, 40))
	}
	if sg, ok := singletons[id]; ok {
		return fmt.Sprintf("%s %s line %d: %s", sg.ID, sg.Kind, sg.AnchorIndex, truncate(sg.Text, 40))
	}
	if idx, ok := anchorFromID(id); ok && idx >= 0 && idx < len(run.Lines) {
		return fmt.Sprintf("%s line %d: %s", id, idx, truncate(run.Lines[idx].Content, 40))
	}
	return id
}

// anchorFromID recovers the anchor line index from a line-anchored node or
// singleton id.
func anchorFromID(id string) (int, bool) {
	if !strings.HasPrefix(id, "l-") && !strings.HasPrefix(id, "s-") {
		return 0, false
	}
	n := 0
	for _, c := range id[2:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
