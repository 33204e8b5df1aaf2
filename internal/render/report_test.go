package render

import (
	"strings"
	"testing"
	"time"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/CanopyHQ/heartwood/internal/transcript"
)

// fixtureRun builds an archived run by hand: one level-2 composite with an
// absorbed context line, one weaker level-1 link, one unclaimed cause, one
// unabsorbed effect.
func fixtureRun() *store.Run {
	lines := []transcript.Line{
		{Index: 0, Author: "Aria", Content: "I douse the lantern and wave them on"},
		{Index: 1, Author: "DM", Content: "The flame gutters as she moves"},
		{Index: 2, Author: "DM", Content: "The corridor goes black"},
		{Index: 3, Author: "DM", Content: "A cold wind slides out of the dark"},
		{Index: 4, Author: "Brand", Content: "((back in ten))"},
		{Index: 5, Author: "Aria", Content: "I check the map"},
		{Index: 6, Author: "Brand", Content: "I shout \"run\" and bolt for the stairs"},
		{Index: 7, Author: "DM", Content: "His boots hammer up the steps"},
	}
	eligible := []bool{true, true, true, true, false, true, true, true}

	return &store.Run{
		Info: store.RunInfo{
			ID:            "ab12cd34ef56ab78",
			Session:       "crypt-run-07",
			KernelVersion: causal.KernelVersion,
			ParamsHash:    "feedbeeffeedbeef",
			Profile:       "default",
			Rounds:        2,
			Nodes:         3,
			Lines:         len(lines),
			CreatedAt:     time.Date(2026, 3, 14, 19, 5, 0, 0, time.UTC),
		},
		Params: causal.DefaultParams(),
		Nodes: []causal.Node{
			{
				ID: "m-00001", Level: 2, Kind: causal.KindComposite, Claimed: true,
				CauseIndex: 0, EffectIndex: 2,
				CauseText: "I douse the lantern and wave them on", EffectText: "The corridor goes black",
				StrengthBridge: 0.97, StrengthInternal: 2.1, Mass: 4.2,
				SpanStart: 0, SpanEnd: 2, CenterIndex: 1,
				ContextLines: []int{1}, Members: []string{"l-00000", "l-00002"},
			},
			{
				ID: "l-00006", Level: 1, Kind: causal.KindComposite, Claimed: true,
				CauseIndex: 6, EffectIndex: 7,
				CauseText: "I shout \"run\" and bolt for the stairs", EffectText: "His boots hammer up the steps",
				StrengthBridge: 0.9, StrengthInternal: 0.9, Mass: 2.0,
				SpanStart: 6, SpanEnd: 7, CenterIndex: 6,
			},
			{
				ID: "l-00005", Level: 1, Kind: causal.KindSingleton, Claimed: false,
				CauseIndex: 5, EffectIndex: -1,
				CauseText: "I check the map",
				Mass:      1.0,
				SpanStart: 5, SpanEnd: 5, CenterIndex: 5,
			},
		},
		Edges: []causal.ContextEdge{
			{SingletonID: "s-00001", NodeID: "m-00001", Strength: 0.42, Distance: 1, Lexical: 0.5, Round: 2},
		},
		Unabsorbed: []causal.Singleton{
			{ID: "s-00003", Kind: causal.SingletonEffect, AnchorIndex: 3, Text: "A cold wind slides out of the dark", Mass: 1},
		},
		Metrics: []causal.Metrics{
			{Nodes: 3, Pairs: 2, StrengthMin: 0.9, StrengthMedian: 0.94, StrengthP90: 0.97, StrengthMax: 0.97},
			{Nodes: 3, Absorptions: 1, StrengthMin: 0.42, StrengthMedian: 0.7, StrengthP90: 0.97, StrengthMax: 0.97},
		},
		Lines:    lines,
		Eligible: eligible,
	}
}

func TestReport(t *testing.T) {
	out := Report(fixtureRun())

	for _, want := range []string{
		"# heartwood run ab12cd34ef56ab78",
		"- **Session**: crypt-run-07",
		"- **Params hash**: `feedbeeffeedbeef`",
		"- **Lines**: 8 (7 eligible)",
		"## Rounds",
		"| 1 | 3 | 2 | 0 | 0.900 | 0.940 | 0.970 | 0.970 |",
		"| 2 | 3 | 0 | 1 |",
		"## Top links",
		"## Unclaimed causes",
		"- `l-00005` line 5: \"I check the map\"",
		"## Unabsorbed pool",
		"- `s-00003` effect line 3:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n---\n%s", want, out)
		}
	}
}

func TestReport_TopLinksOrderedByStrength(t *testing.T) {
	out := Report(fixtureRun())

	strong := strings.Index(out, "`m-00001` level 2")
	weak := strings.Index(out, "`l-00006` level 1")
	if strong < 0 || weak < 0 {
		t.Fatalf("top links not rendered:\n%s", out)
	}
	if strong > weak {
		t.Errorf("stronger link should render first (m-00001 at %d, l-00006 at %d)", strong, weak)
	}
}

func TestReport_Deterministic(t *testing.T) {
	a := Report(fixtureRun())
	b := Report(fixtureRun())
	if a != b {
		t.Error("identical runs should render identical reports")
	}
}
