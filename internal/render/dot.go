package render

import (
	"fmt"
	"strings"

	"github.com/CanopyHQ/heartwood/internal/store"
)

// DOT renders the final hierarchy as a graphviz digraph: composites as
// boxes, residual singletons as ellipses, member edges solid child->parent,
// context absorptions dashed. Output order follows the archived node order,
// so the same run always renders the same bytes.
func DOT(run *store.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "digraph %q {\n", "heartwood_"+run.Info.ID)
	b.WriteString("  rankdir=BT;\n")
	b.WriteString("  node [fontname=\"Helvetica\" fontsize=10];\n\n")

	for _, n := range run.Nodes {
		shape := "box"
		label := fmt.Sprintf("%s\\nL%d mass %.1f", n.ID, n.Level, n.Mass)
		if !n.Claimed {
			shape = "ellipse"
		}
		text := n.CauseText
		if n.Claimed && n.EffectText != "" {
			text = n.CauseText + " -> " + n.EffectText
		}
		if text != "" {
			label += "\\n" + escapeDOT(truncate(text, 60))
		}
		fmt.Fprintf(&b, "  %q [shape=%s label=\"%s\"];\n", n.ID, shape, label)
	}

	b.WriteString("\n")
	for _, n := range run.Nodes {
		for _, child := range n.Members {
			fmt.Fprintf(&b, "  %q -> %q;\n", child, n.ID)
		}
	}
	for _, e := range run.Edges {
		fmt.Fprintf(&b, "  %q -> %q [style=dashed label=\"%.2f\"];\n", e.SingletonID, e.NodeID, e.Strength)
	}
	for _, sg := range run.Unabsorbed {
		fmt.Fprintf(&b, "  %q [shape=ellipse style=dotted label=\"%s\\n%s\"];\n",
			sg.ID, sg.ID, escapeDOT(truncate(sg.Text, 60)))
	}

	b.WriteString("}\n")
	return b.String()
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
