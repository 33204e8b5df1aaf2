package cmd

import (
	"strings"
	"testing"
)

func TestExecute_Version(t *testing.T) {
	defer setArgs("heartwood", "version")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(version): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if out == "" {
		t.Error("version should print to stdout")
	}
	if !strings.Contains(out, "heartwood") {
		t.Errorf("version output should contain 'heartwood': %q", out)
	}
}

func TestExecute_Status(t *testing.T) {
	useTempDataDir(t)

	defer setArgs("heartwood", "status")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(status): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Heartwood Archive Status") {
		t.Errorf("status output: %q", out)
	}
	if !strings.Contains(out, "Archived Runs: 0") {
		t.Errorf("fresh archive should report zero runs: %q", out)
	}
}

func TestExecute_StatusAfterAnalyze(t *testing.T) {
	useTempDataDir(t)
	seedRun(t, "cellar-siege")

	defer setArgs("heartwood", "status")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(status): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Archived Runs: 1") {
		t.Errorf("status should count the archived run: %q", out)
	}
}
