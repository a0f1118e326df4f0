package gitrepo

import (
	"fmt"
	"strings"

	perrors "github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
)

// CLIRepository - commits by running the git command line client
type CLIRepository struct {
	logger *logrus.Logger
	git    exec.Executor
	path   string
}

func NewCLIRepository(logger *logrus.Logger, executor exec.Executor, gitCommand string, path string) *CLIRepository {
	return &CLIRepository{logger: logger, git: exec.NewWrapper(executor, gitCommand), path: path}
}

func (r *CLIRepository) run(env map[string]string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.path}, args...)
	r.logger.Debugf("git %s", shellquote.Join(fullArgs...))
	// Local settings only last for one Run, so inherit on every call
	cmd := r.git.WithInheritEnv()
	if len(env) > 0 {
		cmd = cmd.WithEnv(env)
	}
	result, err := cmd.Run(fullArgs...)
	if err != nil {
		stderr := ""
		if result != nil {
			stderr = strings.TrimSpace(result.Stderr)
		}
		msg := fmt.Sprintf("git %s failed", args[0])
		if stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, stderr)
		}
		return "", perrors.WrapWithContext(err, perrors.CodeExecutionFailed, msg,
			map[string]interface{}{"stderr": stderr})
	}
	return result.Stdout, nil
}

func (r *CLIRepository) Init() error {
	_, err := r.run(nil, "init")
	return err
}

func (r *CLIRepository) Commit(c Commit) (string, error) {
	if _, err := r.run(nil, "add", "-A"); err != nil {
		return "", err
	}
	// Committer identity is per call, never set in our own environment
	env := map[string]string{
		"GIT_COMMITTER_NAME":  c.Author.Name,
		"GIT_COMMITTER_EMAIL": c.Author.Email,
		"GIT_COMMITTER_DATE":  c.Date,
	}
	_, err := r.run(env, "commit", "--allow-empty", "--allow-empty-message",
		"-m", c.Message, "--date", c.Date, "--author="+c.Author.String())
	if err != nil {
		return "", err
	}
	out, err := r.run(nil, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *CLIRepository) Close() error {
	return nil
}
