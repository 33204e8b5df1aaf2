package render

import (
	"strings"
	"testing"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/CanopyHQ/heartwood/internal/transcript"
)

func TestNeighborTrace(t *testing.T) {
	run := fixtureRun()

	out, err := NeighborTrace(run, "m-00001", 2)
	if err != nil {
		t.Fatalf("NeighborTrace: %v", err)
	}

	want := strings.Join([]string{
		"m-00001 level 2 mass 4.2: I douse the lantern and wave them on -> The corridor goes black",
		"  context (strength 0.420) s-00001 line 1: The flame gutters as she moves",
		"  member l-00000 line 0: I douse the lantern and wave them on",
		"  member l-00002 line 2: The corridor goes black",
		"",
	}, "\n")
	if out != want {
		t.Errorf("trace mismatch\nwant:\n%s\ngot:\n%s", want, out)
	}
}

func TestNeighborTrace_UnabsorbedSingleton(t *testing.T) {
	run := fixtureRun()

	out, err := NeighborTrace(run, "s-00003", 1)
	if err != nil {
		t.Fatalf("NeighborTrace: %v", err)
	}
	if !strings.HasPrefix(out, "s-00003 effect line 3:") {
		t.Errorf("singleton trace should describe the pooled effect, got:\n%s", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("isolated singleton should trace to a single line, got:\n%s", out)
	}
}

func TestNeighborTrace_UnknownNode(t *testing.T) {
	run := fixtureRun()

	_, err := NeighborTrace(run, "m-99999", 0)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestNeighborTrace_DepthBound(t *testing.T) {
	// An edge recorded against a child that later merged away puts the
	// absorbed line two hops from the composite.
	run := &store.Run{
		Info: store.RunInfo{ID: "0011223344556677", Session: "depth"},
		Nodes: []causal.Node{
			{
				ID: "m-00001", Level: 2, Kind: causal.KindComposite, Claimed: true,
				CauseIndex: 0, EffectIndex: 3,
				CauseText: "I pull the lever", EffectText: "The gate drops",
				Mass:      3.0,
				Members:   []string{"l-00000", "l-00003"},
			},
		},
		Edges: []causal.ContextEdge{
			{SingletonID: "s-00001", NodeID: "l-00000", Strength: 0.31, Distance: 1, Lexical: 0.4, Round: 1},
		},
		Lines: []transcript.Line{
			{Index: 0, Content: "I pull the lever"},
			{Index: 1, Content: "Chains rattle overhead"},
			{Index: 2, Content: "Dust drifts down"},
			{Index: 3, Content: "The gate drops"},
		},
	}

	shallow, err := NeighborTrace(run, "m-00001", 1)
	if err != nil {
		t.Fatalf("NeighborTrace depth 1: %v", err)
	}
	if strings.Contains(shallow, "s-00001") {
		t.Errorf("depth 1 should stop at members:\n%s", shallow)
	}

	deep, err := NeighborTrace(run, "m-00001", 2)
	if err != nil {
		t.Fatalf("NeighborTrace depth 2: %v", err)
	}
	if !strings.Contains(deep, "    context (strength 0.310) s-00001 line 1: Chains rattle overhead") {
		t.Errorf("depth 2 should reach the absorbed line through the child:\n%s", deep)
	}
}

func TestNeighborTrace_Deterministic(t *testing.T) {
	a, err := NeighborTrace(fixtureRun(), "m-00001", 3)
	if err != nil {
		t.Fatalf("NeighborTrace: %v", err)
	}
	b, err := NeighborTrace(fixtureRun(), "m-00001", 3)
	if err != nil {
		t.Fatalf("NeighborTrace: %v", err)
	}
	if a != b {
		t.Error("trace should be deterministic for the same run")
	}
}
