package gitdescribe

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var testSignature = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
}

// testRepoCreate creates a new in-memory git repository for testing
func testRepoCreate() (*git.Repository, error) {
	storage := memory.NewStorage()
	fs := memfs.New()
	return git.Init(storage, fs)
}

// testRepoFSCreate creates a new filesystem-based git repository for testing
func testRepoFSCreate(path string) (*git.Repository, error) {
	fs := osfs.New(path)
	storage := filesystem.NewStorage(fs, nil)
	return git.Init(storage, fs)
}

// testRepoSingleCommit adds a single commit to the repository and returns the commit hash
func testRepoSingleCommit(repo *git.Repository) (plumbing.Hash, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	err = writeFile(workTree.Filesystem, "test.txt", "Hello world")
	if err != nil {
		return plumbing.ZeroHash, err
	}

	_, err = workTree.Add("test.txt")
	if err != nil {
		return plumbing.ZeroHash, err
	}

	return workTree.Commit("Initial commit", &git.CommitOptions{Author: testSignature})
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}

// testHistory builds commit graphs directly in object storage so tests can
// shape merges and side branches without touching a work tree.
type testHistory struct {
	t    *testing.T
	repo *git.Repository
	tree plumbing.Hash
	n    int
}

func newTestHistory(t *testing.T) *testHistory {
	t.Helper()

	repo, err := testRepoCreate()
	require.NoError(t, err)

	obj := repo.Storer.NewEncodedObject()
	require.NoError(t, (&object.Tree{}).Encode(obj))
	tree, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)

	return &testHistory{t: t, repo: repo, tree: tree}
}

// commit stores a commit with the given parents, first parent first
func (h *testHistory) commit(parents ...plumbing.Hash) plumbing.Hash {
	h.t.Helper()

	h.n++
	commit := &object.Commit{
		Author:       *testSignature,
		Committer:    *testSignature,
		Message:      fmt.Sprintf("commit %d", h.n),
		TreeHash:     h.tree,
		ParentHashes: parents,
	}

	obj := h.repo.Storer.NewEncodedObject()
	require.NoError(h.t, commit.Encode(obj))
	hash, err := h.repo.Storer.SetEncodedObject(obj)
	require.NoError(h.t, err)
	return hash
}

// linear stores n commits on top of parent and returns them oldest first
func (h *testHistory) linear(parent plumbing.Hash, n int) []plumbing.Hash {
	h.t.Helper()

	commits := make([]plumbing.Hash, 0, n)
	for i := 0; i < n; i++ {
		var parents []plumbing.Hash
		if !parent.IsZero() {
			parents = []plumbing.Hash{parent}
		}
		parent = h.commit(parents...)
		commits = append(commits, parent)
	}
	return commits
}

// head points the checked out branch at hash
func (h *testHistory) head(hash plumbing.Hash) {
	h.t.Helper()

	ref := plumbing.NewHashReference(plumbing.Master, hash)
	require.NoError(h.t, h.repo.Storer.SetReference(ref))
}

func (h *testHistory) lightweight(name string, hash plumbing.Hash) {
	h.t.Helper()

	_, err := h.repo.CreateTag(name, hash, nil)
	require.NoError(h.t, err)
}

// dangling points a tag ref at an object the repository does not have.
func (h *testHistory) dangling(name string) {
	h.t.Helper()

	missing := plumbing.NewHash("1111111111111111111111111111111111111111")
	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), missing)
	require.NoError(h.t, h.repo.Storer.SetReference(ref))
}

func (h *testHistory) annotated(name string, hash plumbing.Hash) plumbing.Hash {
	h.t.Helper()
	return h.annotatedAt(name, hash, testSignature.When)
}

// annotatedAt creates an annotated tag and returns the tag object hash
func (h *testHistory) annotatedAt(name string, hash plumbing.Hash, when time.Time) plumbing.Hash {
	h.t.Helper()

	tagger := *testSignature
	tagger.When = when
	ref, err := h.repo.CreateTag(name, hash, &git.CreateTagOptions{
		Tagger:  &tagger,
		Message: "Release " + name,
	})
	require.NoError(h.t, err)
	return ref.Hash()
}

func (h *testHistory) describer(opts ...Option) *Describer {
	logger, _ := test.NewNullLogger()
	return New(NewRepository(h.repo), append([]Option{WithLogger(logger)}, opts...)...)
}

func (h *testHistory) describe(opts DescribeOptions) string {
	h.t.Helper()

	description, err := h.describer().Describe(opts)
	require.NoError(h.t, err)
	return description
}

func short(hash plumbing.Hash) string {
	return hash.String()[:DefaultAbbreviate]
}

// faultyGraph wraps a Graph and fails selected operations
type faultyGraph struct {
	Graph
	peelFailures map[plumbing.ReferenceName]error
	parentsErr   error
	tagsErr      error
}

func (g *faultyGraph) Peel(ref *plumbing.Reference) (Tag, error) {
	if err, ok := g.peelFailures[ref.Name()]; ok {
		return nil, err
	}
	return g.Graph.Peel(ref)
}

func (g *faultyGraph) Parents(commit plumbing.Hash, firstParentOnly bool) ([]plumbing.Hash, error) {
	if g.parentsErr != nil {
		return nil, g.parentsErr
	}
	return g.Graph.Parents(commit, firstParentOnly)
}

func (g *faultyGraph) Tags() ([]*plumbing.Reference, error) {
	if g.tagsErr != nil {
		return nil, g.tagsErr
	}
	return g.Graph.Tags()
}

// staticWorkTree reports a fixed dirty state
type staticWorkTree struct {
	dirty bool
	err   error
}

func (w staticWorkTree) HasUncommittedChanges() (bool, error) {
	return w.dirty, w.err
}
