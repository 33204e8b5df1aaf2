package cmd

import (
	"strings"
	"testing"
)

func TestExecute_ProfilesList(t *testing.T) {
	useTempDataDir(t)

	defer setArgs("heartwood", "profiles", "list")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(profiles list): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"default", "dense-table", "sparse-pbp", "builtin"} {
		if !strings.Contains(out, want) {
			t.Errorf("profile listing missing %q:\n%s", want, out)
		}
	}
}

func TestExecute_ProfilesShow(t *testing.T) {
	useTempDataDir(t)

	defer setArgs("heartwood", "profiles", "show", "default")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(profiles show): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Profile: default") {
		t.Errorf("expected the profile header: %q", out)
	}
	if !strings.Contains(out, "k_local:") {
		t.Errorf("expected the parameters: %q", out)
	}
}

func TestExecute_ProfilesShowUnknown(t *testing.T) {
	useTempDataDir(t)

	defer setArgs("heartwood", "profiles", "show", "no-such-profile")()
	if err := Execute(); err == nil {
		t.Error("expected an error for an unknown profile")
	}
}
