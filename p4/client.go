// Package p4 runs the Perforce command line client to list, describe and sync changelists.
package p4

import (
	"fmt"
	"strings"

	perrors "github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
)

// Client - runs p4 commands
type Client struct {
	logger     *logrus.Logger
	p4         exec.Executor
	globalOpts []string // e.g. -p host:1666 -u user, placed before the command
}

// NewClient wraps executor so that every Run invokes p4Command
func NewClient(logger *logrus.Logger, executor exec.Executor, p4Command string, globalOpts []string) *Client {
	return &Client{
		logger:     logger,
		p4:         exec.NewWrapper(executor, p4Command),
		globalOpts: globalOpts,
	}
}

func (c *Client) run(args ...string) (string, error) {
	fullArgs := append(append([]string{}, c.globalOpts...), args...)
	c.logger.Debugf("p4 %s", shellquote.Join(fullArgs...))
	result, err := c.p4.Run(fullArgs...)
	if err != nil {
		stderr := ""
		if result != nil {
			stderr = strings.TrimSpace(result.Stderr)
		}
		msg := fmt.Sprintf("p4 %s failed", shellquote.Join(fullArgs...))
		if stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, stderr)
		}
		return "", perrors.WrapWithContext(err, perrors.CodeExecutionFailed, msg,
			map[string]interface{}{"stderr": stderr})
	}
	return result.Stdout, nil
}

// Changes lists submitted changelists affecting depotPath, newest first as p4 reports them
func (c *Client) Changes(depotPath string) ([]*Changelist, error) {
	out, err := c.run("changes", "-t", "-s", "submitted", depotPath)
	if err != nil {
		return nil, err
	}
	return ParseChanges(out)
}

// Describe returns the full description of a changelist, one trimmed line per entry
func (c *Client) Describe(revision string) ([]string, error) {
	out, err := c.run("changes", "-l", "@="+revision)
	if err != nil {
		return nil, err
	}
	return ParseDescription(out), nil
}

// Sync force syncs workspace to exactly the revision of depotPath
func (c *Client) Sync(workspace, depotPath, revision string) error {
	_, err := c.run("-c", workspace, "sync", "-f", fmt.Sprintf("%s@%s,@%s", depotPath, revision, revision))
	return err
}
