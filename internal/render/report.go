// Package render produces the human-readable views of an archived run: the
// markdown run report, the indented neighbor trace, and graphviz DOT.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/store"
)

// topLinkCount bounds the "top links" section of the report.
const topLinkCount = 10

// textCap bounds line text quoted in reports and traces.
const textCap = 80

// Report renders the markdown run report: header, per-round metrics table,
// the strongest links, and an appendix of everything left unresolved.
func Report(run *store.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# heartwood run %s\n\n", run.Info.ID)
	fmt.Fprintf(&b, "- **Session**: %s\n", run.Info.Session)
	fmt.Fprintf(&b, "- **Kernel**: %s\n", run.Info.KernelVersion)
	fmt.Fprintf(&b, "- **Params hash**: `%s`\n", run.Info.ParamsHash)
	if run.Info.Profile != "" {
		fmt.Fprintf(&b, "- **Profile**: %s\n", run.Info.Profile)
	}
	if !run.Info.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Created**: %s\n", run.Info.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&b, "- **Lines**: %d (%d eligible)\n", len(run.Lines), countEligible(run.Eligible))

	b.WriteString("\n## Rounds\n\n")
	b.WriteString("| Round | Nodes | Pairs | Absorptions | Min | Median | P90 | Max |\n")
	b.WriteString("|------:|------:|------:|------------:|----:|-------:|----:|----:|\n")
	for i, m := range run.Metrics {
		fmt.Fprintf(&b, "| %d | %d | %d | %d | %.3f | %.3f | %.3f | %.3f |\n",
			i+1, m.Nodes, m.Pairs, m.Absorptions,
			m.StrengthMin, m.StrengthMedian, m.StrengthP90, m.StrengthMax)
	}

	top := topLinks(run.Nodes, topLinkCount)
	if len(top) > 0 {
		b.WriteString("\n## Top links\n\n")
		for i, n := range top {
			fmt.Fprintf(&b, "%d. `%s` level %d, mass %.1f, strength %.3f\n",
				i+1, n.ID, n.Level, n.Mass, n.StrengthInternal)
			fmt.Fprintf(&b, "   - cause: %s\n", quoteText(n.CauseText))
			if n.Claimed {
				fmt.Fprintf(&b, "   - effect: %s\n", quoteText(n.EffectText))
			}
			if len(n.ContextLines) > 0 {
				fmt.Fprintf(&b, "   - context lines: %s\n", joinInts(n.ContextLines))
			}
		}
	}

	unclaimed := unclaimedNodes(run.Nodes)
	if len(unclaimed) > 0 {
		b.WriteString("\n## Unclaimed causes\n\n")
		for _, n := range unclaimed {
			fmt.Fprintf(&b, "- `%s` line %d: %s\n", n.ID, n.CauseIndex, quoteText(n.CauseText))
		}
	}

	if len(run.Unabsorbed) > 0 {
		b.WriteString("\n## Unabsorbed pool\n\n")
		for _, sg := range run.Unabsorbed {
			fmt.Fprintf(&b, "- `%s` %s line %d: %s\n", sg.ID, sg.Kind, sg.AnchorIndex, quoteText(sg.Text))
		}
	}

	return b.String()
}

// topLinks returns the strongest composite nodes, strength then id order.
func topLinks(nodes []causal.Node, limit int) []causal.Node {
	var links []causal.Node
	for _, n := range nodes {
		if n.Claimed {
			links = append(links, n)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].StrengthInternal != links[j].StrengthInternal {
			return links[i].StrengthInternal > links[j].StrengthInternal
		}
		return links[i].ID < links[j].ID
	})
	if len(links) > limit {
		links = links[:limit]
	}
	return links
}

func unclaimedNodes(nodes []causal.Node) []causal.Node {
	var out []causal.Node
	for _, n := range nodes {
		if !n.Claimed {
			out = append(out, n)
		}
	}
	return out
}

func countEligible(eligible []bool) int {
	count := 0
	for _, e := range eligible {
		if e {
			count++
		}
	}
	return count
}

func quoteText(s string) string {
	return fmt.Sprintf("%q", truncate(s, textCap))
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%d", x)
	}
	return strings.Join(parts, ", ")
}
