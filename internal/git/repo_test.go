package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotMessage(t *testing.T) {
	tests := []struct {
		name string
		hash string
		want string
	}{
		{
			name: "long hash truncated",
			hash: "0123456789abcdef",
			want: "heartwood: crypt-run-07 [01234567] 12 nodes, 3 unabsorbed",
		},
		{
			name: "short hash kept",
			hash: "abc",
			want: "heartwood: crypt-run-07 [abc] 12 nodes, 3 unabsorbed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SnapshotMessage("crypt-run-07", tt.hash, 12, 3)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectRepository(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	nested := filepath.Join(root, "sessions", "campaign")
	require.NoError(t, os.MkdirAll(nested, 0755))

	repo, err := DetectRepository(nested)
	require.NoError(t, err)
	assert.Equal(t, root, repo.Root)
}

func TestDetectRepository_NotARepo(t *testing.T) {
	_, err := DetectRepository(t.TempDir())
	assert.Error(t, err)
}

func TestCommitArtifacts(t *testing.T) {
	if !Available() {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		out, err := exec.Command("git", append([]string{"-C", root}, args...)...).CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")

	artifact := filepath.Join(root, "report.md")
	require.NoError(t, os.WriteFile(artifact, []byte("# run\n"), 0644))

	repo, err := DetectRepository(root)
	require.NoError(t, err)

	msg := SnapshotMessage("session", "feedbeef", 4, 1)
	require.NoError(t, repo.CommitArtifacts([]string{artifact}, msg))

	out, err := exec.Command("git", "-C", root, "log", "-1", "--format=%s").Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), "heartwood: session")

	// Nothing changed; a second commit call is a no-op, not an error.
	require.NoError(t, repo.CommitArtifacts([]string{artifact}, msg))
}

func TestCommitArtifacts_OutsideRepo(t *testing.T) {
	repo := &Repository{Root: t.TempDir()}
	other := filepath.Join(t.TempDir(), "stray.md")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))

	err := repo.CommitArtifacts([]string{other}, "msg")
	assert.Error(t, err)
}
