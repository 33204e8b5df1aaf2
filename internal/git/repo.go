// Package git commits analysis artifacts into a session directory's
// repository. Everything shells out to the git CLI; callers gate the
// feature on Available.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repository is a git working tree that run artifacts are committed into.
type Repository struct {
	Root string
}

// Available reports whether the git CLI is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// DetectRepository walks up from path looking for a working tree root.
func DetectRepository(path string) (*Repository, error) {
	root, err := findGitDir(path)
	if err != nil {
		return nil, err
	}
	return &Repository{Root: root}, nil
}

// SnapshotMessage builds the commit message for one archived run.
func SnapshotMessage(session, paramsHash string, nodes, unabsorbed int) string {
	hash := paramsHash
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return fmt.Sprintf("heartwood: %s [%s] %d nodes, %d unabsorbed", session, hash, nodes, unabsorbed)
}

// CommitArtifacts stages paths and commits them with message. Paths with no
// changes are fine; the commit is skipped when nothing is staged.
func (r *Repository) CommitArtifacts(paths []string, message string) error {
	if len(paths) == 0 {
		return nil
	}

	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		rp, err := filepath.Rel(r.Root, p)
		if err != nil || strings.HasPrefix(rp, "..") {
			return fmt.Errorf("artifact %s is outside repository %s", p, r.Root)
		}
		rel = append(rel, rp)
	}

	addArgs := append([]string{"-C", r.Root, "add", "--"}, rel...)
	if out, err := exec.Command("git", addArgs...).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to stage artifacts: %w\nOutput: %s", err, string(out))
	}

	statusArgs := append([]string{"-C", r.Root, "status", "--porcelain", "--"}, rel...)
	out, err := exec.Command("git", statusArgs...).Output()
	if err != nil {
		return fmt.Errorf("failed to check status: %w", err)
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return nil
	}

	commitArgs := append([]string{"-C", r.Root, "commit", "-m", message, "--"}, rel...)
	if out, err := exec.Command("git", commitArgs...).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to commit artifacts: %w\nOutput: %s", err, string(out))
	}
	return nil
}

// findGitDir finds the working tree root starting from the given path.
func findGitDir(startPath string) (string, error) {
	path := startPath
	for {
		gitPath := filepath.Join(path, ".git")
		if info, err := os.Stat(gitPath); err == nil && info.IsDir() {
			return path, nil
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", fmt.Errorf("not a git repository")
		}
		path = parent
	}
}
