package gitdescribe

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Graph is the read-only view of the commit graph the describe algorithm
// runs on. Implementations must present a consistent snapshot for the
// duration of a call.
type Graph interface {
	// Resolve turns a revision such as "HEAD" into a commit id.
	Resolve(name string) (plumbing.Hash, error)

	// Tags lists every tag reference.
	Tags() ([]*plumbing.Reference, error)

	// Peel resolves a tag reference to its effective target commit.
	Peel(ref *plumbing.Reference) (Tag, error)

	// Parents lists the parents of a commit in order. With firstParentOnly
	// set, at most the first parent is returned.
	Parents(commit plumbing.Hash, firstParentOnly bool) ([]plumbing.Hash, error)
}

// WorkTree reports whether the checkout has uncommitted changes.
type WorkTree interface {
	HasUncommittedChanges() (bool, error)
}

// Repository implements Graph and WorkTree on top of go-git.
type Repository struct {
	repo *git.Repository

	shallowOnce sync.Once
	shallow     map[plumbing.Hash]struct{}
	shallowErr  error
}

var (
	_ Graph    = (*Repository)(nil)
	_ WorkTree = (*Repository)(nil)
)

// OpenRepository opens the Git repository containing path
func OpenRepository(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %q: %w", path, err)
	}
	return NewRepository(repo), nil
}

// NewRepository wraps an already opened go-git repository.
func NewRepository(repo *git.Repository) *Repository {
	return &Repository{repo: repo}
}

// Git returns the underlying go-git repository
func (r *Repository) Git() *git.Repository {
	return r.repo
}

func (r *Repository) Resolve(name string) (plumbing.Hash, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(name))
	switch {
	case err == nil:
		return *hash, nil
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return plumbing.ZeroHash, fmt.Errorf("resolving %q: %w", name, ErrNoCommit)
	default:
		return plumbing.ZeroHash, accessError(fmt.Sprintf("resolving %q", name), err)
	}
}

func (r *Repository) Tags() ([]*plumbing.Reference, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, accessError("listing tags", err)
	}

	var refs []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, accessError("listing tags", err)
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Name() < refs[j].Name()
	})
	return refs, nil
}

func (r *Repository) Peel(ref *plumbing.Reference) (Tag, error) {
	name := ref.Name().Short()

	obj, err := r.repo.TagObject(ref.Hash())
	switch err {
	case nil:
	case plumbing.ErrObjectNotFound:
		// Not a tag object; a lightweight tag only if the target exists at all
		if err := r.repo.Storer.HasEncodedObject(ref.Hash()); err != nil {
			return nil, accessError(fmt.Sprintf("peeling %s", ref.Name()), err)
		}
		return &LightweightTag{TagName: name, Commit: ref.Hash()}, nil
	default:
		return nil, accessError(fmt.Sprintf("peeling %s", ref.Name()), err)
	}

	tag := &AnnotatedTag{
		TagName: name,
		Object:  obj.Hash,
		Tagger:  obj.Tagger.When,
	}

	// Tags of tags are peeled down to the first non-tag object.
	for obj.TargetType == plumbing.TagObject {
		obj, err = r.repo.TagObject(obj.Target)
		if err != nil {
			return nil, accessError(fmt.Sprintf("peeling %s", ref.Name()), err)
		}
	}
	tag.Commit = obj.Target

	return tag, nil
}

func (r *Repository) Parents(commit plumbing.Hash, firstParentOnly bool) ([]plumbing.Hash, error) {
	shallow, err := r.shallowCommits()
	if err != nil {
		return nil, err
	}
	// History is cut at shallow boundaries; their parents are not present.
	if _, ok := shallow[commit]; ok {
		return nil, nil
	}

	obj, err := r.repo.CommitObject(commit)
	if err != nil {
		return nil, accessError(fmt.Sprintf("reading commit %s", commit), err)
	}

	parents := obj.ParentHashes
	if firstParentOnly && len(parents) > 1 {
		parents = parents[:1]
	}
	return parents, nil
}

func (r *Repository) shallowCommits() (map[plumbing.Hash]struct{}, error) {
	r.shallowOnce.Do(func() {
		hashes, err := r.repo.Storer.Shallow()
		if err != nil {
			r.shallowErr = accessError("reading shallow commits", err)
			return
		}
		r.shallow = make(map[plumbing.Hash]struct{}, len(hashes))
		for _, h := range hashes {
			r.shallow[h] = struct{}{}
		}
	})
	return r.shallow, r.shallowErr
}

func (r *Repository) HasUncommittedChanges() (bool, error) {
	workTree, err := r.repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return false, nil
	}
	if err != nil {
		return false, accessError("getting worktree", err)
	}

	// Fast path for filesystem storage
	if _, ok := r.repo.Storer.(*filesystem.Storage); ok {
		if gitPath, err := exec.LookPath("git"); err == nil {
			return checkDirtyWithGitCommand(gitPath, workTree.Filesystem.Root())
		}
	}

	// Fallback to go-git status check
	status, err := workTree.Status()
	if err != nil {
		return false, accessError("getting git status", err)
	}
	return hasTrackedChanges(status), nil
}

// hasTrackedChanges ignores untracked files, like `git describe --dirty`.
func hasTrackedChanges(status git.Status) bool {
	for _, file := range status {
		if file.Staging == git.Untracked && file.Worktree == git.Untracked {
			continue
		}
		if file.Staging != git.Unmodified || file.Worktree != git.Unmodified {
			return true
		}
	}
	return false
}

func checkDirtyWithGitCommand(gitPath, repoPath string) (bool, error) {
	// Refresh stat info so touched but unchanged files do not count
	refresh := exec.Command(gitPath, "update-index", "-q", "--refresh")
	refresh.Dir = repoPath
	if err := refresh.Run(); err != nil {
		// A non-zero exit only means some entries needed refreshing
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return false, accessError("running git update-index", err)
		}
	}

	cmd := exec.Command(gitPath, "diff-index", "--quiet", "HEAD", "--")
	cmd.Dir = repoPath
	err := cmd.Run()
	if err == nil {
		return false, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, accessError("running git diff-index", err)
}
