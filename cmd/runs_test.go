package cmd

import (
	"strings"
	"testing"
)

func TestExecute_RunsListEmpty(t *testing.T) {
	useTempDataDir(t)

	defer setArgs("heartwood", "runs", "list")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(runs list): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No runs archived yet") {
		t.Errorf("empty archive message: %q", out)
	}
}

func TestExecute_RunsList(t *testing.T) {
	useTempDataDir(t)
	seedRun(t, "cellar-siege")

	defer setArgs("heartwood", "runs", "list")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(runs list): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "cellar-siege") {
		t.Errorf("listing should show the session: %q", out)
	}
	if !strings.Contains(out, "1 run(s)") {
		t.Errorf("listing should count runs: %q", out)
	}
}

func TestExecute_RunsShow(t *testing.T) {
	useTempDataDir(t)
	seedRun(t, "cellar-siege")

	defer setArgs("heartwood", "runs", "show", "cellar-siege")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(runs show): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Session: cellar-siege", "Profile: default", "Params Hash:", "Rounds:"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestExecute_RunsDelete(t *testing.T) {
	useTempDataDir(t)
	seedRun(t, "cellar-siege")

	defer setArgs("heartwood", "runs", "delete", "cellar-siege")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(runs delete): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "✅ Deleted run ") {
		t.Errorf("delete confirmation: %q", out)
	}

	defer setArgs("heartwood", "runs", "list")()
	out, err = captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(runs list): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No runs archived yet") {
		t.Errorf("archive should be empty after delete: %q", out)
	}
}

func TestRunRunsPrune(t *testing.T) {
	useTempDataDir(t)
	seedRun(t, "cellar-siege")

	out, err := captureStdout(func() {
		if e := runRunsPrune(3); e != nil {
			t.Fatalf("runRunsPrune: %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Nothing to prune") {
		t.Errorf("one run under the keep limit should survive: %q", out)
	}

	if err := runRunsPrune(0); err == nil {
		t.Error("expected an error for keep < 1")
	}
}
