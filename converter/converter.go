// Package converter replays Perforce changelists as git commits, oldest first.
package converter

import (
	"slices"

	perrors "github.com/jmgilman/go/errors"
	"github.com/rcowham/p4gittransfer/gitrepo"
	"github.com/rcowham/p4gittransfer/identity"
	"github.com/rcowham/p4gittransfer/journal"
	"github.com/rcowham/p4gittransfer/node"
	"github.com/rcowham/p4gittransfer/p4"
	"github.com/rcowham/p4gittransfer/tree"
	"github.com/sirupsen/logrus"
)

// Source - the Perforce operations needed for a conversion
type Source interface {
	Changes(depotPath string) ([]*p4.Changelist, error)
	Describe(revision string) ([]string, error)
	Sync(workspace, depotPath, revision string) error
}

// Options for a conversion
type Options struct {
	OutputPath    string // git repository working tree
	WorkspacePath string // local root of the p4 workspace
	P4Workspace   string // p4 client name
	DepotPath     string // e.g. //depot/project/...
}

// Converter - drives a one-shot conversion
type Converter struct {
	logger       *logrus.Logger
	opts         Options
	source       Source
	resolver     *identity.Resolver
	materializer *tree.Materializer
	repo         gitrepo.Repository
	journal      *journal.Journal // optional
}

func NewConverter(logger *logrus.Logger, opts Options, source Source, resolver *identity.Resolver,
	materializer *tree.Materializer, repo gitrepo.Repository) *Converter {
	return &Converter{logger: logger, opts: opts, source: source, resolver: resolver,
		materializer: materializer, repo: repo}
}

// SetJournal records each converted changelist in j
func (c *Converter) SetJournal(j *journal.Journal) {
	c.journal = j
}

// Changelists returns the changelists to replay, oldest first. Every submitter
// must have an identity, checked here so that a missing mapping is found
// before anything is written to the repository.
func (c *Converter) Changelists() ([]*p4.Changelist, error) {
	changes, err := c.source.Changes(c.opts.DepotPath)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(changes))
	for _, cl := range changes {
		users = append(users, cl.User)
	}
	if err := c.resolver.CheckAll(users); err != nil {
		return nil, err
	}
	slices.Reverse(changes)
	return changes, nil
}

// Run converts the whole history, returning the number of commits created.
// There are no retries: the first error stops the run and commits already made are left in place.
func (c *Converter) Run() (int, error) {
	changes, err := c.Changelists()
	if err != nil {
		return 0, err
	}
	c.logger.Infof("Found %d changelists for %s", len(changes), c.opts.DepotPath)
	if err := c.repo.Init(); err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		c.logger.Warnf("No submitted changelists found for %s", c.opts.DepotPath)
		return 0, nil
	}
	var prev *node.Node
	for i, cl := range changes {
		c.logger.Infof("%s", cl)
		t, err := c.convertChange(cl, i > 0, prev)
		if err != nil {
			return i, perrors.WithContext(err, "change", cl.Revision)
		}
		prev = t.Root
	}
	return len(changes), nil
}

// Converts a single changelist: describe, sync, rebuild the tree, commit
func (c *Converter) convertChange(cl *p4.Changelist, clear bool, prev *node.Node) (*tree.Tree, error) {
	desc, err := c.source.Describe(cl.Revision)
	if err != nil {
		return nil, err
	}
	cl.SetDescription(desc)
	for _, line := range cl.Description {
		c.logger.Debugf("  %s", line)
	}
	author, err := c.resolver.Resolve(cl.User)
	if err != nil {
		return nil, err
	}
	if err := c.source.Sync(c.opts.P4Workspace, c.opts.DepotPath, cl.Revision); err != nil {
		return nil, err
	}
	if clear {
		if err := c.materializer.Clear(c.opts.OutputPath); err != nil {
			return nil, err
		}
	}
	t, err := c.materializer.Materialize(c.opts.WorkspacePath, c.opts.OutputPath)
	if err != nil {
		return nil, err
	}
	removed := t.Root.Removed(prev)
	c.logger.Debugf("Change %s: files %d (text %d, binary %d, symlinks %d), removed %d, bytes %d",
		cl.Revision, t.Stats.Files, t.Stats.Text, t.Stats.Binary, t.Stats.Symlinks, len(removed), t.Stats.Bytes)
	for _, f := range removed {
		c.logger.Debugf("  removed: %s", f)
	}
	id, err := c.repo.Commit(gitrepo.Commit{
		Message: cl.Message(),
		Author:  author,
		Date:    cl.Timestamp(),
		Tree:    t,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debugf("Change %s committed as %s", cl.Revision, id)
	if c.journal != nil {
		err := c.journal.WriteChange(journal.Record{
			Change: cl.Revision, Date: cl.Date, Time: cl.Time, User: cl.User, Commit: id})
		if err != nil {
			return nil, perrors.Wrap(err, tree.CodeFilesystem, "failed to write journal")
		}
	}
	return t, nil
}
