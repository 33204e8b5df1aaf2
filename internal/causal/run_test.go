package causal

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

func testRegistry(t *testing.T) *transcript.Registry {
	t.Helper()
	reg, err := transcript.NewRegistry([]transcript.Actor{
		{ID: "aria", Name: "Aria"},
		{ID: "brand", Name: "Brand"},
	}, []string{"DM"})
	if err != nil {
		t.Fatalf("test registry: %v", err)
	}
	return reg
}

func makeLines(rows [][2]string) []transcript.Line {
	lines := make([]transcript.Line, len(rows))
	for i, r := range rows {
		lines[i] = transcript.Line{Index: i, Author: r[0], Content: r[1]}
	}
	return lines
}

func testInput(t *testing.T, rows [][2]string) Input {
	t.Helper()
	lines := makeLines(rows)
	return Input{
		Lines:  lines,
		Mask:   transcript.AllEligible(len(lines)),
		Actors: testRegistry(t),
	}
}

func newTestState(t *testing.T, rows [][2]string, p Params) *state {
	t.Helper()
	return newState(testInput(t, rows), p, runConfig{})
}

func findTrace(traces []Trace, kind, subject string) *Trace {
	for i := range traces {
		if traces[i].Kind == kind && traces[i].Subject == subject {
			return &traces[i]
		}
	}
	return nil
}

func TestRun_deterministicOutput(t *testing.T) {
	rows := [][2]string{
		{"DM", "The caravan creaks through the mountain pass"},
		{"Aria", "I scout ahead for an ambush site"},
		{"DM", "You spot fresh goblin tracks by the stream"},
		{"Bob", "lol classic goblins"},
		{"Brand", "I string my bow and take the high ledge"},
		{"DM", "Loose scree rattles under your boots"},
		{"Aria", "I signal the wagons to halt"},
		{"DM", "The drivers rein in, dust settling"},
		{"Bob", "(ooc: pizza is here)"},
		{"Brand", "I loose a warning shot at the thicket"},
		{"DM", "A shriek answers and branches whip"},
		{"Aria", "I charge down the slope"},
		{"DM", "Goblins scatter before you"},
		{"Bob", "nice crit"},
	}

	build := func() Input {
		in := testInput(t, rows)
		in.Mask.Exclude(8, 8, "ooc")
		in.Classes = transcript.CauseClasses{11: transcript.CauseStrong}
		return in
	}
	p := DefaultParams()
	p.UseIDF = true

	first, err := Run(build(), p, WithTraces())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := Run(build(), p, WithTraces())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Error("identical input must serialize byte-identical")
	}
	if first.Provenance.ParamsHash != second.Provenance.ParamsHash {
		t.Error("provenance must be stable")
	}
}

func TestRun_roundsProgressToMerge(t *testing.T) {
	in := testInput(t, [][2]string{
		{"Aria", "I douse the lantern"},
		{"DM", "Darkness swallows the cellar"},
		{"Brand", "I bar the oak door"},
		{"DM", "Muffled pounding rattles the hinges"},
	})

	res, err := Run(in, DefaultParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Round 1 pairs both exchanges, round 2 merges them, round 3 finds
	// nothing and stops early.
	if len(res.Rounds) != 3 {
		t.Fatalf("rounds = %d, want 3", len(res.Rounds))
	}
	if res.Rounds[0].Metrics.Pairs != 2 || res.Rounds[0].Metrics.Nodes != 2 {
		t.Errorf("round 1 metrics = %+v", res.Rounds[0].Metrics)
	}
	if res.Rounds[1].NewComposites != 1 || res.Rounds[1].Metrics.Nodes != 1 {
		t.Errorf("round 2 metrics = %+v", res.Rounds[1].Metrics)
	}
	if got := res.Rounds[2].Metrics; got != (Metrics{Nodes: 1}) {
		t.Errorf("idle round metrics = %+v, want node count only", got)
	}

	if len(res.Nodes) != 1 {
		t.Fatalf("final nodes = %+v", res.Nodes)
	}
	top := res.Nodes[0]
	if top.Level != 2 || !top.Claimed || len(top.Members) != 2 {
		t.Errorf("top node = %+v", top)
	}
	for _, r := range res.Rounds[0].Nodes {
		if top.Mass <= r.Mass {
			t.Errorf("merge mass %v must exceed child mass %v", top.Mass, r.Mass)
		}
	}
	if len(res.Unabsorbed) != 0 {
		t.Errorf("unabsorbed = %+v", res.Unabsorbed)
	}
}

func TestRun_massNeverShrinks(t *testing.T) {
	in := testInput(t, [][2]string{
		{"Aria", "I pry the grate loose"},
		{"DM", "Rusted iron squeals free of the stone"},
		{"DM", "Somewhere below, water drips"},
		{"Brand", "I drop a torch down the shaft"},
		{"DM", "The torch gutters and lands in shallow water"},
		{"Aria", "I climb down the ladder rungs"},
		{"DM", "The rungs hold, slick with algae"},
		{"Brand", "I follow her down the shaft"},
		{"DM", "Your boots splash beside the torch"},
	})

	res, err := Run(in, DefaultParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A node that survives into the next round may gain mass from
	// absorption but never lose it.
	for i := 1; i < len(res.Rounds); i++ {
		prev := make(map[string]float64, len(res.Rounds[i-1].Nodes))
		for _, n := range res.Rounds[i-1].Nodes {
			prev[n.ID] = n.Mass
		}
		for _, n := range res.Rounds[i].Nodes {
			if before, ok := prev[n.ID]; ok && n.Mass < before {
				t.Errorf("round %d: node %s mass %v dropped from %v", i+1, n.ID, n.Mass, before)
			}
		}
	}
}

func TestRun_earlyStopDisabled(t *testing.T) {
	in := testInput(t, [][2]string{
		{"Aria", "I douse the lantern"},
		{"DM", "Darkness swallows the cellar"},
		{"Brand", "I bar the oak door"},
		{"DM", "Muffled pounding rattles the hinges"},
	})
	p := DefaultParams()
	p.EarlyStop = false

	res, err := Run(in, p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rounds) != p.MaxRounds {
		t.Errorf("rounds = %d, want all %d without early stop", len(res.Rounds), p.MaxRounds)
	}
}

func TestRun_inputValidation(t *testing.T) {
	good := func() Input {
		return testInput(t, [][2]string{
			{"Aria", "I knock on the door"},
			{"DM", "It swings open"},
		})
	}

	t.Run("bad params", func(t *testing.T) {
		p := DefaultParams()
		p.KLocal = 0
		if _, err := Run(good(), p); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("nil registry", func(t *testing.T) {
		in := good()
		in.Actors = nil
		if _, err := Run(in, DefaultParams()); !errors.Is(err, ErrNilRegistry) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("broken line order", func(t *testing.T) {
		in := good()
		in.Lines[1].Index = 7
		if _, err := Run(in, DefaultParams()); !errors.Is(err, transcript.ErrLineOrder) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("mask mismatch", func(t *testing.T) {
		in := good()
		in.Mask = transcript.AllEligible(5)
		if _, err := Run(in, DefaultParams()); !errors.Is(err, transcript.ErrMaskShape) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("class out of range", func(t *testing.T) {
		in := good()
		in.Classes = transcript.CauseClasses{9: transcript.CauseStrong}
		if _, err := Run(in, DefaultParams()); !errors.Is(err, transcript.ErrClassShape) {
			t.Errorf("got %v", err)
		}
	})
}

func TestRun_degenerateInputs(t *testing.T) {
	t.Run("empty transcript", func(t *testing.T) {
		in := Input{Mask: transcript.AllEligible(0), Actors: testRegistry(t)}
		res, err := Run(in, DefaultParams())
		if err != nil {
			t.Fatalf("empty input is valid, got %v", err)
		}
		if len(res.Nodes) != 0 || len(res.Unabsorbed) != 0 {
			t.Errorf("empty input should produce empty output: %+v", res)
		}
		if len(res.Rounds) != 2 {
			t.Errorf("rounds = %d, want 1 plus the stopping round", len(res.Rounds))
		}
	})

	t.Run("everything masked", func(t *testing.T) {
		in := testInput(t, [][2]string{
			{"Aria", "I shove the brazier over"},
			{"DM", "Flames race across the dry straw"},
		})
		in.Mask = transcript.Mask{Eligible: []bool{false, false}}
		res, err := Run(in, DefaultParams())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(res.Nodes) != 0 {
			t.Errorf("masked lines must not produce nodes: %+v", res.Nodes)
		}
	})

	t.Run("no narrator lines", func(t *testing.T) {
		res, err := Run(testInput(t, [][2]string{
			{"Aria", "I whistle for the hounds"},
			{"Aria", "I draw the short bow"},
		}), DefaultParams())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		// No effects means no level-1 pairs, but the leftover causes still
		// meet as generic nodes in round 2.
		if res.Rounds[0].Metrics.Pairs != 0 {
			t.Errorf("round 1 pairs = %d, want 0", res.Rounds[0].Metrics.Pairs)
		}
		if len(res.Nodes) != 1 || res.Nodes[0].ID != "m-00001" || res.Nodes[0].Level != 1 {
			t.Errorf("final nodes = %+v", res.Nodes)
		}
	})
}

func TestRun_competitionEndToEnd(t *testing.T) {
	res, err := Run(testInput(t, scenarioCompetingRows()), DefaultParams(), WithTraces())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Rounds) != 2 {
		t.Fatalf("rounds = %d, want pairing round plus stopping round", len(res.Rounds))
	}
	m := res.Rounds[0].Metrics
	if m.Pairs != 1 || m.Absorptions != 1 || m.Nodes != 1 {
		t.Errorf("round 1 metrics = %+v", m)
	}
	if !(m.StrengthMin > 0 && m.StrengthMin <= m.StrengthMedian &&
		m.StrengthMedian <= m.StrengthP90 && m.StrengthP90 <= m.StrengthMax) {
		t.Errorf("strength distribution out of order: %+v", m)
	}

	if len(res.Nodes) != 1 || res.Nodes[0].ID != "l-00005" {
		t.Fatalf("final nodes = %+v", res.Nodes)
	}
	if got := res.Nodes[0].ContextLines; len(got) != 1 || got[0] != 2 {
		t.Errorf("losing cause should end up as context: %v", got)
	}
	if len(res.Edges) != 1 || res.Edges[0].SingletonID != "l-00002" {
		t.Errorf("edges = %+v", res.Edges)
	}

	// An idle round changes nothing: its snapshot matches the previous one.
	a, _ := json.Marshal(res.Rounds[0].Nodes)
	b, _ := json.Marshal(res.Rounds[1].Nodes)
	if !bytes.Equal(a, b) {
		t.Error("stopping round must carry the unchanged node set")
	}

	// The audit trail explains both the win and the loss.
	if tr := findTrace(res.Traces, "pair", "l-00002"); tr == nil ||
		len(tr.Candidates) != 1 || tr.Candidates[0].Reason != ReasonEffectClaimed {
		t.Errorf("losing nomination trace = %+v", tr)
	}
	if tr := findTrace(res.Traces, "pair", "l-00005"); tr == nil ||
		!tr.Candidates[0].Chosen || tr.Candidates[0].Reason != ReasonChosen {
		t.Errorf("winning nomination trace = %+v", tr)
	}
	if tr := findTrace(res.Traces, "absorb", "l-00002"); tr == nil {
		t.Error("absorption decision should be traced")
	}
}

func TestRun_tracesOptIn(t *testing.T) {
	in := func() Input { return testInput(t, scenarioCompetingRows()) }

	plain, err := Run(in(), DefaultParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	traced, err := Run(in(), DefaultParams(), WithTraces())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if plain.Traces != nil {
		t.Error("traces must be opt-in")
	}
	if len(traced.Traces) == 0 {
		t.Error("WithTraces should retain decision records")
	}

	// Tracing is observation only: nodes and provenance are unaffected.
	a, _ := json.Marshal(plain.Nodes)
	b, _ := json.Marshal(traced.Nodes)
	if !bytes.Equal(a, b) {
		t.Error("tracing must not change the result")
	}
	if plain.Provenance.ParamsHash != traced.Provenance.ParamsHash {
		t.Error("tracing must not enter the provenance hash")
	}
}
