package gitdescribe

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"
)

// Describer answers describe and exact-match queries for one revision of a
// repository. It keeps no state between calls.
type Describer struct {
	graph    Graph
	workTree WorkTree
	revision string
	log      logrus.FieldLogger
}

// Option configures a Describer.
type Option func(*Describer)

// WithRevision sets the revision to describe (default: "HEAD")
func WithRevision(revision string) Option {
	return func(d *Describer) {
		d.revision = revision
	}
}

// WithWorkTree sets the source of the dirty flag. Without one the result is
// never marked dirty.
func WithWorkTree(workTree WorkTree) Option {
	return func(d *Describer) {
		d.workTree = workTree
	}
}

// WithLogger sets the logger (default: the logrus standard logger)
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Describer) {
		d.log = log
	}
}

// New creates a Describer reading from graph.
func New(graph Graph, opts ...Option) *Describer {
	d := &Describer{
		graph:    graph,
		revision: "HEAD",
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ForRepository describes HEAD of repo, using its work tree for the dirty
// flag.
func ForRepository(repo *Repository, opts ...Option) *Describer {
	return New(repo, append([]Option{WithWorkTree(repo)}, opts...)...)
}

// Describe returns the description of the configured revision, e.g.
// "v1.2.0", "v1.2.0-3-gabcdef1", "abcdef1" or any of those with "-dirty".
func (d *Describer) Describe(opts DescribeOptions) (string, error) {
	result, err := d.DescribeResult(opts)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// DescribeResult is Describe without the final formatting.
func (d *Describer) DescribeResult(opts DescribeOptions) (*Result, error) {
	matcher, err := opts.compile()
	if err != nil {
		return nil, err
	}

	start, err := d.resolve()
	if err != nil {
		return nil, err
	}

	candidates, err := d.candidates(matcher, opts.AnnotatedTagsOnly)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Hash:       start,
		Abbreviate: opts.Abbreviate,
		Long:       opts.LongFormat,
	}

	tag, distance, err := d.nearest(start, candidates, opts.FirstParentOnly)
	if err != nil {
		return nil, err
	}
	if tag != nil {
		result.Tag = tag.Name()
		result.Distance = distance
	}

	if d.workTree != nil {
		dirty, err := d.workTree.HasUncommittedChanges()
		if err != nil {
			return nil, accessError("determining git status", err)
		}
		result.Dirty = dirty
	}

	d.log.WithFields(logrus.Fields{
		"revision": d.revision,
		"tag":      result.Tag,
		"distance": result.Distance,
		"dirty":    result.Dirty,
	}).Debug("Described revision")

	return result, nil
}

func (d *Describer) resolve() (plumbing.Hash, error) {
	hash, err := d.graph.Resolve(d.revision)
	if err != nil && !errors.Is(err, ErrNoCommit) {
		return plumbing.ZeroHash, accessError(fmt.Sprintf("resolving %q", d.revision), err)
	}
	return hash, err
}

// candidates peels every tag that survives the filters and indexes the
// preferred one per target commit. Tags that cannot be peeled are skipped.
func (d *Describer) candidates(matcher *tagMatcher, annotatedOnly bool) (map[plumbing.Hash]Tag, error) {
	refs, err := d.graph.Tags()
	if err != nil {
		return nil, accessError("listing tags", err)
	}

	candidates := make(map[plumbing.Hash]Tag)
	for _, ref := range refs {
		name := ref.Name().Short()
		if !matcher.Match(name) {
			continue
		}

		tag, err := d.graph.Peel(ref)
		if err != nil {
			d.log.WithError(err).WithField("ref", ref.Name().String()).
				Warn("Skipping tag that could not be peeled")
			continue
		}
		if annotatedOnly && !tag.Annotated() {
			continue
		}

		target := tag.Target()
		if current, ok := candidates[target]; ok && !preferTag(tag, current) {
			continue
		}
		candidates[target] = tag
	}
	return candidates, nil
}

// nearest walks the graph breadth first from start and returns the first
// candidate reached together with its depth. Each commit is visited once.
func (d *Describer) nearest(start plumbing.Hash, candidates map[plumbing.Hash]Tag,
	firstParentOnly bool) (Tag, int, error) {

	if len(candidates) == 0 {
		return nil, 0, nil
	}

	type entry struct {
		commit   plumbing.Hash
		distance int
	}

	visited := map[plumbing.Hash]struct{}{start: {}}
	queue := []entry{{commit: start}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if tag, ok := candidates[current.commit]; ok {
			return tag, current.distance, nil
		}

		parents, err := d.graph.Parents(current.commit, firstParentOnly)
		if err != nil {
			return nil, 0, accessError(fmt.Sprintf("reading parents of %s", current.commit), err)
		}
		for i, parent := range parents {
			if firstParentOnly && i > 0 {
				break
			}
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = struct{}{}
			queue = append(queue, entry{commit: parent, distance: current.distance + 1})
		}
	}

	return nil, 0, nil
}

// ExactMatch reports whether the configured revision is itself tagged.
// Unlike Describe, a tag that cannot be peeled fails the call.
func (d *Describer) ExactMatch() (bool, error) {
	tag, err := d.ExactTag()
	if err != nil {
		return false, err
	}
	return tag != nil, nil
}

// ExactTag returns the first tag, in the order the graph lists them, whose target is the
// configured revision, or nil when there is none.
func (d *Describer) ExactTag() (Tag, error) {
	head, err := d.resolve()
	if err != nil {
		return nil, err
	}

	refs, err := d.graph.Tags()
	if err != nil {
		return nil, accessError("listing tags", err)
	}

	for _, ref := range refs {
		tag, err := d.graph.Peel(ref)
		if err != nil {
			return nil, accessError(fmt.Sprintf("peeling %s", ref.Name()), err)
		}
		if tag.Target() == head {
			return tag, nil
		}
	}
	return nil, nil
}
