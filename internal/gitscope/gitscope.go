// Package gitscope restricts a lint run to files and lines touched since a
// git revision. It resolves the revision with libgit2, diffs the revision's
// tree against the worktree to list changed paths, and computes per-file
// changed line sets so findings on untouched lines can be filtered out.
package gitscope

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrRevisionNotFound is returned when the changed-since revision does not
// resolve to a commit.
var ErrRevisionNotFound = errors.New("revision not found")

// LineSet is the set of 1-based line numbers changed in one file.
type LineSet map[uint]struct{}

// Contains reports whether any line in [startLine, endLine] is in the set.
func (ls LineSet) Contains(startLine, endLine uint) bool {
	for line := startLine; line <= endLine; line++ {
		if _, ok := ls[line]; ok {
			return true
		}
	}

	return false
}

// Scope holds the changed files of one changed-since query. Paths are
// relative to the repository workdir, using forward slashes as git reports
// them. A nil *Scope means no scoping: every file and line is in scope.
type Scope struct {
	root  string
	files map[string]LineSet
}

// InScope reports whether path (absolute or workdir-relative) changed since
// the scoped revision.
func (s *Scope) InScope(path string) bool {
	if s == nil {
		return true
	}

	_, ok := s.files[s.relPath(path)]

	return ok
}

// LinesFor returns the changed line set for path, or nil when the whole file
// is new (every line is in scope) or the path is not scoped.
func (s *Scope) LinesFor(path string) LineSet {
	if s == nil {
		return nil
	}

	return s.files[s.relPath(path)]
}

// Len returns the number of changed files in the scope.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}

	return len(s.files)
}

func (s *Scope) relPath(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}

	return filepath.ToSlash(rel)
}

// ChangedSince opens the repository containing repoPath, resolves rev, and
// returns the scope of files changed between the revision's tree and the
// worktree.
func ChangedSince(repoPath, rev string) (*Scope, error) {
	repo, err := git2go.OpenRepositoryExtended(repoPath, 0, "")
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", repoPath, err)
	}

	defer repo.Free()

	tree, err := resolveTree(repo, rev)
	if err != nil {
		return nil, err
	}

	defer tree.Free()

	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("diff options: %w", err)
	}

	opts.Flags |= git2go.DiffIncludeUntracked | git2go.DiffRecurseUntracked

	diff, err := repo.DiffTreeToWorkdirWithIndex(tree, &opts)
	if err != nil {
		return nil, fmt.Errorf("diff %s to worktree: %w", rev, err)
	}

	defer func() { _ = diff.Free() }()

	scope := &Scope{root: repo.Workdir(), files: make(map[string]LineSet)}

	err = collectDeltas(repo, diff, scope)
	if err != nil {
		return nil, err
	}

	return scope, nil
}

// resolveTree peels rev to its commit tree.
func resolveTree(repo *git2go.Repository, rev string) (*git2go.Tree, error) {
	obj, err := repo.RevparseSingle(rev)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRevisionNotFound, rev, err)
	}

	defer obj.Free()

	peeled, err := obj.Peel(git2go.ObjectCommit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s does not point at a commit: %w", ErrRevisionNotFound, rev, err)
	}

	defer peeled.Free()

	commit, err := peeled.AsCommit()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRevisionNotFound, rev, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("commit tree for %s: %w", rev, err)
	}

	return tree, nil
}

func collectDeltas(repo *git2go.Repository, diff *git2go.Diff, scope *Scope) error {
	count, err := diff.NumDeltas()
	if err != nil {
		return fmt.Errorf("count deltas: %w", err)
	}

	for idx := range count {
		delta, deltaErr := diff.Delta(idx)
		if deltaErr != nil {
			return fmt.Errorf("delta %d: %w", idx, deltaErr)
		}

		switch delta.Status {
		case git2go.DeltaAdded, git2go.DeltaUntracked, git2go.DeltaCopied:
			// Whole file is new; nil line set means every line is in scope.
			scope.files[delta.NewFile.Path] = nil
		case git2go.DeltaModified, git2go.DeltaRenamed:
			scope.files[delta.NewFile.Path] = changedLines(repo, scope.root, delta)
		default:
			// Deletions and unmodified entries carry no lintable lines.
		}
	}

	return nil
}

// changedLines diffs the revision's blob against the worktree file and
// returns the new-side changed line numbers. Any failure degrades to a nil
// set: the whole file stays in scope rather than silently dropping findings.
func changedLines(repo *git2go.Repository, root string, delta git2go.DiffDelta) LineSet {
	blob, err := repo.LookupBlob(delta.OldFile.Oid)
	if err != nil {
		return nil
	}

	defer blob.Free()

	current, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(delta.NewFile.Path)))
	if err != nil {
		return nil
	}

	return DiffLineSet(string(blob.Contents()), string(current))
}

// DiffLineSet computes the 1-based line numbers of after that differ from
// before. Lines are diffed as atoms, the rune-mapping trick keeps the diff
// linear in line count.
func DiffLineSet(before, after string) LineSet {
	dmp := diffmatchpatch.New()

	src, dst, _ := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffMainRunes(src, dst, false)

	changed := make(LineSet)

	var line uint

	for _, edit := range diffs {
		switch edit.Type {
		case diffmatchpatch.DiffEqual:
			line += uint(countRunes(edit.Text))
		case diffmatchpatch.DiffInsert:
			for range countRunes(edit.Text) {
				line++
				changed[line] = struct{}{}
			}
		case diffmatchpatch.DiffDelete:
			// Deleted lines have no position on the new side.
		}
	}

	return changed
}

func countRunes(text string) int {
	return len([]rune(text))
}

// IsRepository reports whether path is inside a git worktree.
func IsRepository(path string) bool {
	repo, err := git2go.OpenRepositoryExtended(path, 0, "")
	if err != nil {
		return false
	}

	defer repo.Free()

	return !repo.IsBare() && strings.TrimSpace(repo.Workdir()) != ""
}
