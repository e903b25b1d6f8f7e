// Package gitdescribe computes human-readable version strings for Git
// repositories in the manner of `git describe --tags --always`.
package gitdescribe

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultAbbreviate is the hash length used when none is configured and a
// hash is the only thing left to print.
const DefaultAbbreviate = 7

// Shorter abbreviations are raised to this length.
const minAbbreviate = 4

// DescribeOptions configures a single describe call. It is a plain value and
// is never modified by the Describer.
type DescribeOptions struct {
	// Match restricts candidate tags to names matching this glob.
	// Empty means every tag is eligible.
	Match string

	// Exclude drops tags whose names match any of these globs
	Exclude []string

	// LongFormat always emits tag-distance-ghash, even on a tagged commit
	LongFormat bool

	// AnnotatedTagsOnly ignores lightweight tags
	AnnotatedTagsOnly bool

	// FirstParentOnly follows only the first parent of merge commits
	FirstParentOnly bool

	// Abbreviate is the number of hex characters of the commit id to print.
	// Zero suppresses the hash suffix whenever a tag was found.
	Abbreviate int
}

// Validate checks the options without touching a repository.
func (o DescribeOptions) Validate() error {
	_, err := o.compile()
	return err
}

// compile validates the options and builds the tag matcher they describe.
func (o DescribeOptions) compile() (*tagMatcher, error) {
	if o.Abbreviate < 0 {
		return nil, fmt.Errorf("abbreviate must not be negative, got %d", o.Abbreviate)
	}
	return newTagMatcher(o.Match, o.Exclude)
}

// Tag is a tag reference with its effective target commit resolved.
// It is either a *LightweightTag or an *AnnotatedTag.
type Tag interface {
	// Name is the short tag name, e.g. "v1.2.0"
	Name() string
	// Target is the commit the tag ultimately points at
	Target() plumbing.Hash
	// Annotated reports whether the tag is backed by a tag object
	Annotated() bool

	isTag()
}

// LightweightTag points directly at a commit.
type LightweightTag struct {
	TagName string
	Commit  plumbing.Hash
}

func (t *LightweightTag) Name() string          { return t.TagName }
func (t *LightweightTag) Target() plumbing.Hash { return t.Commit }
func (t *LightweightTag) Annotated() bool       { return false }
func (*LightweightTag) isTag()                  {}

// AnnotatedTag points at a tag object, which in turn points at Commit.
type AnnotatedTag struct {
	TagName string
	// Object is the hash of the tag object itself
	Object plumbing.Hash
	// Commit is the peeled target
	Commit plumbing.Hash
	Tagger time.Time
}

func (t *AnnotatedTag) Name() string          { return t.TagName }
func (t *AnnotatedTag) Target() plumbing.Hash { return t.Commit }
func (t *AnnotatedTag) Annotated() bool       { return true }
func (*AnnotatedTag) isTag()                  {}

// preferTag reports whether a should win over b when both point at the
// same commit. Annotated tags beat lightweight ones, newer annotated tags
// beat older ones, and the name breaks any remaining tie.
func preferTag(a, b Tag) bool {
	if a.Annotated() != b.Annotated() {
		return a.Annotated()
	}
	if at, ok := a.(*AnnotatedTag); ok {
		bt := b.(*AnnotatedTag)
		if !at.Tagger.Equal(bt.Tagger) {
			return at.Tagger.After(bt.Tagger)
		}
	}
	return a.Name() > b.Name()
}
