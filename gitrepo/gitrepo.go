// Package gitrepo creates commits in the target git repository.
//
// Three backends share the Repository interface: the git command line (the
// default), go-git, and a git fast-import stream written to a file. All of them
// take the author, committer and date for each commit as explicit parameters.
package gitrepo

import (
	"fmt"
	"time"

	perrors "github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
	"github.com/rcowham/p4gittransfer/identity"
	"github.com/rcowham/p4gittransfer/tree"
	"github.com/sirupsen/logrus"
)

// Backend names accepted by New
const (
	BackendGit        = "git"
	BackendGoGit      = "gogit"
	BackendFastImport = "fastimport"
)

// DateLayout - format of Commit.Date
const DateLayout = "2006-01-02T15:04:05"

// Commit - everything needed to commit one changelist
type Commit struct {
	Message string
	Author  identity.Identity // Also used as committer
	Date    string            // Local time, DateLayout, used for author and committer
	Tree    *tree.Tree        // Materialized files
}

// When parses Date as local time
func (c Commit) When() (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, c.Date, time.Local)
	if err != nil {
		return t, perrors.Wrapf(err, perrors.CodeInvalidInput, "invalid commit date '%s'", c.Date)
	}
	return t, nil
}

// Repository - a target for converted changelists
type Repository interface {
	// Init creates an empty repository
	Init() error
	// Commit stages the whole working tree (adds, edits and deletes) and commits it,
	// returning an identifier for the new commit
	Commit(c Commit) (string, error)
	Close() error
}

func unknownBackend(name string) error {
	return perrors.New(perrors.CodeInvalidInput,
		fmt.Sprintf("unknown backend '%s', expected one of %s, %s, %s", name, BackendGit, BackendGoGit, BackendFastImport))
}

// Options - selects and configures a backend
type Options struct {
	Backend        string
	Path           string        // Repository working tree
	GitCommand     string        // git backend
	Executor       exec.Executor // git backend
	Branch         string        // gogit and fastimport backends
	FastImportFile string        // fastimport backend
}

// New returns the Repository for opts.Backend
func New(logger *logrus.Logger, opts Options) (Repository, error) {
	switch opts.Backend {
	case BackendGit, "":
		return NewCLIRepository(logger, opts.Executor, opts.GitCommand, opts.Path), nil
	case BackendGoGit:
		return NewGoGitRepository(logger, opts.Path, opts.Branch), nil
	case BackendFastImport:
		if opts.FastImportFile == "" {
			return nil, perrors.New(perrors.CodeInvalidInput, "fastimport backend needs an output file")
		}
		return NewFastImportRepository(logger, opts.Path, opts.FastImportFile, opts.Branch), nil
	}
	return nil, unknownBackend(opts.Backend)
}
