package gitrepo

import (
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	perrors "github.com/jmgilman/go/errors"
	"github.com/sirupsen/logrus"
)

// GoGitRepository - commits in process using go-git, no git executable needed
type GoGitRepository struct {
	logger *logrus.Logger
	path   string
	branch string
	repo   *gogit.Repository
}

func NewGoGitRepository(logger *logrus.Logger, path string, branch string) *GoGitRepository {
	return &GoGitRepository{logger: logger, path: path, branch: branch}
}

func (r *GoGitRepository) Init() error {
	repo, err := gogit.PlainInitWithOptions(r.path, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(r.branch)},
	})
	if err != nil {
		return perrors.Wrapf(err, perrors.CodeExecutionFailed, "failed to init repository %s", r.path)
	}
	r.repo = repo
	return nil
}

func (r *GoGitRepository) Commit(c Commit) (string, error) {
	when, err := c.When()
	if err != nil {
		return "", err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", perrors.Wrap(err, perrors.CodeExecutionFailed, "failed to get worktree")
	}
	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return "", perrors.Wrap(err, perrors.CodeExecutionFailed, "failed to stage changes")
	}
	sig := &object.Signature{Name: c.Author.Name, Email: c.Author.Email, When: when}
	r.logger.Debugf("go-git commit: author %s date %s", c.Author, c.Date)
	hash, err := wt.Commit(c.Message, &gogit.CommitOptions{
		All:               true,
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", perrors.Wrap(err, perrors.CodeExecutionFailed, "failed to create commit")
	}
	return hash.String(), nil
}

func (r *GoGitRepository) Close() error {
	return nil
}
