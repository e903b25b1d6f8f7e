package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/jaxxstorm/gitdescribe"
	"github.com/sirupsen/logrus"
)

// Version will be set by build process
var Version = "dev"

// errNotExact makes --exact-match exit non-zero without printing an error
var errNotExact = errors.New("revision is not tagged")

type CLI struct {
	Commitish   string   `arg:"" optional:"" default:"HEAD" help:"Git commitish to describe"`
	Repo        string   `short:"r" env:"GIT_DESCRIBE_REPO" help:"Repository path (default: current directory)"`
	Match       string   `short:"m" env:"GIT_DESCRIBE_MATCH" help:"Only consider tags matching this glob (e.g. 'v[0-9]*')"`
	Exclude     []string `env:"GIT_DESCRIBE_EXCLUDE" help:"Ignore tags matching this glob; may be repeated"`
	Prefix      string   `short:"p" env:"GIT_DESCRIBE_PREFIX" help:"Only consider tags starting with this prefix; stripped from semver output"`
	Long        bool     `env:"GIT_DESCRIBE_LONG" help:"Always output tag-distance-ghash"`
	Annotated   bool     `env:"GIT_DESCRIBE_ANNOTATED" help:"Only consider annotated tags"`
	FirstParent bool     `env:"GIT_DESCRIBE_FIRST_PARENT" help:"Only follow the first parent of merge commits"`
	Abbrev      int      `default:"7" env:"GIT_DESCRIBE_ABBREV" help:"Hex digits of the commit id to show; 0 shows the tag only"`
	Dirty       bool     `default:"true" negatable:"" env:"GIT_DESCRIBE_DIRTY" help:"Append -dirty when the work tree has uncommitted changes"`
	ExactMatch  bool     `help:"Print whether the commit is tagged and exit non-zero if it is not"`
	Format      string   `short:"f" default:"describe" enum:"describe,semver" env:"GIT_DESCRIBE_FORMAT" help:"Output format"`
	JSON        bool     `short:"j" help:"Output as JSON"`
	LogLevel    string   `default:"warn" enum:"trace,debug,info,warn,error" env:"GIT_DESCRIBE_LOG_LEVEL" help:"Log level"`
	ShowVersion bool     `help:"Show version information" name:"version"`

	stdout io.Writer `kong:"-"`
}

type describeOutput struct {
	Description string `json:"description"`
	Tag         string `json:"tag,omitempty"`
	Distance    int    `json:"distance"`
	Hash        string `json:"hash"`
	Dirty       bool   `json:"dirty"`
	Exact       bool   `json:"exact"`
	Semver      string `json:"semver,omitempty"`
}

// configFiles are JSON files whose keys provide flag defaults
var configFiles = []string{".git-describe.json", "~/.git-describe.json"}

func parserOptions() []kong.Option {
	return []kong.Option{
		kong.Name("git-describe"),
		kong.Description("Describe a Git commit by its nearest tag"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(kong.JSON, configFiles...),
		kong.Vars{
			"version": Version,
		},
	}
}

func main() {
	var cli CLI

	kong.Parse(&cli, parserOptions()...)

	err := cli.Run()
	if errors.Is(err, errNotExact) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) Run() error {
	if c.stdout == nil {
		c.stdout = os.Stdout
	}

	if err := c.configureLogging(); err != nil {
		return err
	}

	// Handle version flag
	if c.ShowVersion {
		return c.showVersion()
	}

	describer, err := c.describer()
	if err != nil {
		return err
	}

	if c.ExactMatch {
		return c.exactMatch(describer)
	}
	return c.describe(describer)
}

func (c *CLI) configureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logrus.SetLevel(level)
	return nil
}

func (c *CLI) showVersion() error {
	versionInfo := map[string]string{
		"version": Version,
		"name":    "git-describe",
	}

	if c.JSON {
		return json.NewEncoder(c.stdout).Encode(versionInfo)
	}

	fmt.Fprintf(c.stdout, "git-describe version %s\n", Version)
	return nil
}

func (c *CLI) describer() (*gitdescribe.Describer, error) {
	repoPath := c.Repo
	if repoPath == "" {
		var err error
		repoPath, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
	}

	repo, err := gitdescribe.OpenRepository(repoPath)
	if err != nil {
		return nil, err
	}

	commitish := c.Commitish
	if commitish == "" {
		commitish = "HEAD"
	}

	log := logrus.WithField("repo", repoPath)
	opts := []gitdescribe.Option{
		gitdescribe.WithRevision(commitish),
		gitdescribe.WithLogger(log),
	}
	// The work tree only says something about HEAD
	if c.Dirty && commitish == "HEAD" {
		opts = append(opts, gitdescribe.WithWorkTree(repo))
	}

	return gitdescribe.New(repo, opts...), nil
}

func (c *CLI) options() gitdescribe.DescribeOptions {
	match := c.Match
	if match == "" && c.Prefix != "" {
		match = c.Prefix + "*"
	}

	return gitdescribe.DescribeOptions{
		Match:             match,
		Exclude:           c.Exclude,
		LongFormat:        c.Long,
		AnnotatedTagsOnly: c.Annotated,
		FirstParentOnly:   c.FirstParent,
		Abbreviate:        c.Abbrev,
	}
}

func (c *CLI) describe(describer *gitdescribe.Describer) error {
	result, err := describer.DescribeResult(c.options())
	if err != nil {
		return fmt.Errorf("describing %s: %w", c.Commitish, err)
	}

	var semver string
	if c.Format == "semver" || c.JSON {
		version, err := result.Semver(c.Prefix)
		switch {
		case err == nil:
			semver = version.String()
		case c.Format == "semver":
			return fmt.Errorf("converting to semver: %w", err)
		default:
			logrus.WithError(err).Debug("Tag is not a semantic version")
		}
	}

	if c.JSON {
		return json.NewEncoder(c.stdout).Encode(describeOutput{
			Description: result.String(),
			Tag:         result.Tag,
			Distance:    result.Distance,
			Hash:        result.Hash.String(),
			Dirty:       result.Dirty,
			Exact:       result.Exact(),
			Semver:      semver,
		})
	}

	output := result.String()
	if c.Format == "semver" {
		output = semver
	}
	fmt.Fprintln(c.stdout, output)
	return nil
}

func (c *CLI) exactMatch(describer *gitdescribe.Describer) error {
	tag, err := describer.ExactTag()
	if err != nil {
		return fmt.Errorf("checking for exact tag: %w", err)
	}

	if c.JSON {
		info := map[string]interface{}{"exact": tag != nil}
		if tag != nil {
			info["tag"] = tag.Name()
		}
		if err := json.NewEncoder(c.stdout).Encode(info); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(c.stdout, tag != nil)
	}

	if tag == nil {
		return errNotExact
	}
	return nil
}
