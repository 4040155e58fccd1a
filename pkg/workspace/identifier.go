// Package workspace derives stable workspace identifiers (git-aware) used
// to scope approvals and log sessions, plus sortable execution ids for
// workflow runs.
package workspace

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// WorkspaceID determines the workspace ID for a working directory: repo
// name + branch inside a git checkout, directory name + path hash
// otherwise. The id keys approval dedup, so it must be stable across
// processes observing the same checkout.
func WorkspaceID(cwd string) string {
	if info := getGitMetadata(cwd); info.valid {
		branch := info.branch
		if branch == "" {
			branch = "unknown"
		}
		return fmt.Sprintf("%s-%s", info.repoName, branch)
	}

	dirName := filepath.Base(cwd)
	pathHash := shortHash(cwd)
	return fmt.Sprintf("%s-%s", dirName, pathHash)
}

// shortHash generates a short hash of a string
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:4])
}

// ProjectPath returns the project path (git root or cwd).
func ProjectPath(cwd string) string {
	if info := getGitMetadata(cwd); info.valid && info.rootPath != "" {
		return info.rootPath
	}
	return cwd
}

// GitInfo returns git repository and branch information for cwd.
func GitInfo(cwd string) (repo string, branch string) {
	info := getGitMetadata(cwd)
	if info.valid {
		repo = info.repoName
		branch = info.branch
		if branch == "" {
			branch = "unknown"
		}
	}
	return
}

// DefaultWorkspaceID returns the workspace ID for the current working
// directory.
func DefaultWorkspaceID() string {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Sprintf("default-%s", shortHash(fmt.Sprintf("%d", os.Getpid())))
	}
	return WorkspaceID(cwd)
}

var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9\-]`)
var ulidEntropy = ulid.Monotonic(cryptorand.Reader, 0)

// NewExecutionID returns a unique, time-sortable execution id with the
// provided base name (typically a workflow name).
func NewExecutionID(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "exec"
	}
	base = strings.ToLower(strings.ReplaceAll(base, " ", "-"))
	base = idSanitizer.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "exec"
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
	return fmt.Sprintf("%s-%s", base, strings.ToLower(id))
}

type gitMetadata struct {
	repoName string
	branch   string
	rootPath string
	valid    bool
}

//go:generate mockgen -package=workspace -destination=mock_git_runner.go -source=identifier.go gitCommandRunner
type gitCommandRunner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

type execGitRunner struct{}

func (execGitRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Output()
}

type gitDetector struct {
	timeout time.Duration
	runner  gitCommandRunner
	cache   sync.Map
}

const defaultGitTimeout = 3 * time.Second

var defaultGitDetector = newGitDetector()

func newGitDetector() *gitDetector {
	return &gitDetector{
		timeout: defaultGitTimeout,
		runner:  execGitRunner{},
	}
}

func getGitMetadata(cwd string) gitMetadata {
	return defaultGitDetector.metadata(cwd)
}

func (d *gitDetector) metadata(cwd string) gitMetadata {
	if d == nil || cwd == "" {
		return gitMetadata{}
	}
	if cached, ok := d.cache.Load(cwd); ok {
		if info, ok := cached.(gitMetadata); ok {
			return info
		}
	}

	info := gitMetadata{}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	rootOutput, err := d.runner.Run(ctx, cwd, "rev-parse", "--show-toplevel")
	if err != nil {
		d.cache.Store(cwd, info)
		return info
	}
	root := strings.TrimSpace(string(rootOutput))
	if root == "" {
		d.cache.Store(cwd, info)
		return info
	}
	info.rootPath = root
	info.repoName = filepath.Base(root)
	info.valid = true

	branchCtx, branchCancel := context.WithTimeout(context.Background(), d.timeout)
	defer branchCancel()
	branchOutput, err := d.runner.Run(branchCtx, cwd, "rev-parse", "--abbrev-ref", "HEAD")
	if err == nil {
		info.branch = strings.TrimSpace(string(branchOutput))
	}

	d.cache.Store(cwd, info)
	return info
}

// setGitDetector allows tests to replace the default detector.
func setGitDetector(det *gitDetector) func() {
	prev := defaultGitDetector
	defaultGitDetector = det
	return func() {
		defaultGitDetector = prev
	}
}
