package render

import (
	"fmt"
	"strings"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/store"
)

// AuditSections selects which unresolved groups an audit renders.
type AuditSections struct {
	Unclaimed  bool
	Unabsorbed bool
}

// Audit renders everything a run left unresolved: unclaimed causes and the
// unabsorbed pool, each with its candidate traces when the run archived
// them. This is the "why did nothing claim this line" view.
func Audit(run *store.Run) string {
	return AuditFiltered(run, AuditSections{Unclaimed: true, Unabsorbed: true})
}

// AuditFiltered is Audit restricted to the requested sections. The header
// counts always cover the whole run.
func AuditFiltered(run *store.Run, sections AuditSections) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# heartwood audit %s\n\n", run.Info.ID)
	fmt.Fprintf(&b, "- **Session**: %s\n", run.Info.Session)
	fmt.Fprintf(&b, "- **Nodes**: %d (%d unclaimed)\n", len(run.Nodes), len(unclaimedNodes(run.Nodes)))
	fmt.Fprintf(&b, "- **Unabsorbed**: %d\n", len(run.Unabsorbed))

	bySubject := tracesBySubject(run.Traces)
	if len(run.Traces) == 0 {
		b.WriteString("\nRun was archived without traces. Re-analyze with --traces for candidate detail.\n")
	}

	unclaimed := unclaimedNodes(run.Nodes)
	if sections.Unclaimed && len(unclaimed) > 0 {
		b.WriteString("\n## Unclaimed causes\n\n")
		for _, n := range unclaimed {
			fmt.Fprintf(&b, "- `%s` line %d: %s\n", n.ID, n.CauseIndex, quoteText(n.CauseText))
			writeTraces(&b, bySubject[n.ID])
		}
	}

	if sections.Unabsorbed && len(run.Unabsorbed) > 0 {
		b.WriteString("\n## Unabsorbed pool\n\n")
		for _, sg := range run.Unabsorbed {
			fmt.Fprintf(&b, "- `%s` %s line %d: %s\n", sg.ID, sg.Kind, sg.AnchorIndex, quoteText(sg.Text))
			writeTraces(&b, bySubject[sg.ID])
		}
	}

	switch {
	case sections.Unclaimed && sections.Unabsorbed && len(unclaimed) == 0 && len(run.Unabsorbed) == 0:
		b.WriteString("\nNothing left unresolved: every cause claimed an effect and every residual was absorbed.\n")
	case sections.Unclaimed && !sections.Unabsorbed && len(unclaimed) == 0:
		b.WriteString("\nNo unclaimed causes.\n")
	case sections.Unabsorbed && !sections.Unclaimed && len(run.Unabsorbed) == 0:
		b.WriteString("\nNo unabsorbed residuals.\n")
	}

	return b.String()
}

// NodeAudit renders every decision one node or singleton took part in: the
// traces it was the subject of, and the traces where it appeared as a
// candidate for someone else.
func NodeAudit(run *store.Run, nodeID string) (string, error) {
	known := false
	for i := range run.Nodes {
		if run.Nodes[i].ID == nodeID {
			known = true
			break
		}
	}
	if !known {
		for i := range run.Unabsorbed {
			if run.Unabsorbed[i].ID == nodeID {
				known = true
				break
			}
		}
	}

	var asSubject, asCandidate []causal.Trace
	for _, tr := range run.Traces {
		if tr.Subject == nodeID {
			asSubject = append(asSubject, tr)
			continue
		}
		for _, c := range tr.Candidates {
			if c.Target == nodeID {
				asCandidate = append(asCandidate, tr)
				break
			}
		}
	}
	if !known && len(asSubject) == 0 && len(asCandidate) == 0 {
		return "", fmt.Errorf("node %s not found in run %s", nodeID, run.Info.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# heartwood audit %s, node %s\n\n", run.Info.ID, nodeID)

	nodes := make(map[string]*causal.Node)
	for i := range run.Nodes {
		nodes[run.Nodes[i].ID] = &run.Nodes[i]
	}
	singletons := make(map[string]*causal.Singleton)
	for i := range run.Unabsorbed {
		singletons[run.Unabsorbed[i].ID] = &run.Unabsorbed[i]
	}
	fmt.Fprintf(&b, "%s\n", describe(nodeID, run, nodes, singletons))

	if len(asSubject) > 0 {
		b.WriteString("\n## Decisions for this node\n\n")
		writeTraces(&b, asSubject)
	}
	if len(asCandidate) > 0 {
		b.WriteString("\n## Considered by\n\n")
		for _, tr := range asCandidate {
			fmt.Fprintf(&b, "- round %d %s for `%s`:\n", tr.Round, tr.Kind, tr.Subject)
			for _, c := range tr.Candidates {
				if c.Target == nodeID {
					writeCandidate(&b, c)
				}
			}
		}
	}
	if len(asSubject) == 0 && len(asCandidate) == 0 {
		b.WriteString("\nNo traces archived for this node.\n")
	}

	return b.String(), nil
}

func tracesBySubject(traces []causal.Trace) map[string][]causal.Trace {
	m := make(map[string][]causal.Trace, len(traces))
	for _, tr := range traces {
		m[tr.Subject] = append(m[tr.Subject], tr)
	}
	return m
}

func writeTraces(b *strings.Builder, traces []causal.Trace) {
	for _, tr := range traces {
		fmt.Fprintf(b, "  - round %d %s:\n", tr.Round, tr.Kind)
		for _, c := range tr.Candidates {
			writeCandidate(b, c)
		}
		if len(tr.Candidates) == 0 {
			fmt.Fprintf(b, "    (no candidates in range)\n")
		}
	}
}

func writeCandidate(b *strings.Builder, c causal.Candidate) {
	marker := " "
	if c.Chosen {
		marker = "*"
	}
	fmt.Fprintf(b, "    %s %s strength %.3f threshold %.3f %s\n",
		marker, c.Target, c.Strength, c.Threshold, c.Reason)
}
