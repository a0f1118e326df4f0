package converter

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	perrors "github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
	"github.com/rcowham/p4gittransfer/config"
	"github.com/rcowham/p4gittransfer/fakeexec"
	"github.com/rcowham/p4gittransfer/gitrepo"
	"github.com/rcowham/p4gittransfer/identity"
	"github.com/rcowham/p4gittransfer/journal"
	"github.com/rcowham/p4gittransfer/p4"
	"github.com/rcowham/p4gittransfer/tree"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var debug bool = false

func init() {
	flag.BoolVar(&debug, "debug", false, "Set to have debug logging for tests.")
}

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if debug {
		logger.Level = logrus.DebugLevel
	}
	return logger
}

const depotPath = "//depot/proj/..."

// Contents of the workspace after syncing each revision
var revisions = map[string]map[string]string{
	"100": {"a.txt": "a1\n", "b.txt": "b1\n", "dir/d.txt": "d1\n"},
	"101": {"a.txt": "a2\n", "c.txt": "c1\n", "dir/d.txt": "d1\n"},
	"102": {"c.txt": "c1\n", "newdir/d.txt": "d1\n"},
}

var descriptions = map[string]string{
	"100": "Initial import",
	"101": "Fix bug\n\tSee JIRA-123",
	"102": "Move d",
}

const threeChanges = `Change 102 on 2021/03/06 09:00:01 by alice@alice_ws 'Move d '
Change 101 on 2021/03/05 18:30:00 by alice@alice_ws 'Fix bug '
Change 100 on 2021/03/04 12:34:56 by alice@alice_ws 'Initial import '
`

// p4 fake: serves changes/describe output and performs syncs by rewriting the workspace
type p4Fake struct {
	t         *testing.T
	workspace string
	changes   string
	failSync  string // revision whose sync fails
}

func (f *p4Fake) handle(call fakeexec.Call) (*exec.Result, error) {
	args := call.Args[1:]
	switch {
	case args[0] == "changes" && args[1] == "-t":
		return &exec.Result{Stdout: f.changes}, nil
	case args[0] == "changes" && args[1] == "-l":
		rev := strings.TrimPrefix(args[2], "@=")
		return &exec.Result{Stdout: fmt.Sprintf("Change %s on 2021/03/04 by alice@alice_ws\n\n\t%s\n", rev, descriptions[rev])}, nil
	case args[0] == "-c" && args[2] == "sync":
		rev := args[4][strings.LastIndex(args[4], "@")+1:]
		if rev == f.failSync {
			return fakeexec.Fail(call, 1, "Connect to server failed")
		}
		f.sync(rev)
		return nil, nil
	}
	f.t.Fatalf("unexpected p4 command %v", call.Args)
	return nil, nil
}

func (f *p4Fake) sync(rev string) {
	entries, err := os.ReadDir(f.workspace)
	require.NoError(f.t, err)
	for _, e := range entries {
		require.NoError(f.t, os.RemoveAll(filepath.Join(f.workspace, e.Name())))
	}
	for name, contents := range revisions[rev] {
		p := filepath.Join(f.workspace, filepath.FromSlash(name))
		require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(f.t, os.WriteFile(p, []byte(contents), 0644))
	}
	require.NoError(f.t, os.WriteFile(filepath.Join(f.workspace, ".gitignore"), []byte("*.o\n"), 0644))
}

// Records commits without touching the filesystem
type recordingRepo struct {
	inits   int
	commits []gitrepo.Commit
}

func (r *recordingRepo) Init() error { r.inits++; return nil }
func (r *recordingRepo) Commit(c gitrepo.Commit) (string, error) {
	r.commits = append(r.commits, c)
	return fmt.Sprintf("c%d", len(r.commits)), nil
}
func (r *recordingRepo) Close() error { return nil }

func newResolver() *identity.Resolver {
	return identity.NewResolver(map[string]config.User{
		"alice": {Name: "Alice A", Email: "alice@x.com"},
	})
}

func setup(t *testing.T, changes string, repo gitrepo.Repository) (*Converter, *p4Fake, *fakeexec.Executor, string) {
	logger := createLogger()
	ws := t.TempDir()
	out := t.TempDir()
	pf := &p4Fake{t: t, workspace: ws, changes: changes}
	fake := fakeexec.New(pf.handle)
	client := p4.NewClient(logger, fake, "p4", nil)
	if repo == nil {
		repo = gitrepo.NewGoGitRepository(logger, out, "main")
	}
	opts := Options{OutputPath: out, WorkspacePath: ws, P4Workspace: "alice_ws", DepotPath: depotPath}
	c := NewConverter(logger, opts, client, newResolver(), tree.NewMaterializer(logger, []string{".gitignore"}), repo)
	return c, pf, fake, out
}

func TestChangelistsOldestFirst(t *testing.T) {
	c, _, _, _ := setup(t, threeChanges, &recordingRepo{})
	changes, err := c.Changelists()
	require.NoError(t, err)
	require.Equal(t, 3, len(changes))
	assert.Equal(t, "100", changes[0].Revision)
	assert.Equal(t, "101", changes[1].Revision)
	assert.Equal(t, "102", changes[2].Revision)
}

func TestConvertThreeChanges(t *testing.T) {
	c, _, fake, out := setup(t, threeChanges, nil)
	buf := new(bytes.Buffer)
	j := journal.NewJournal("")
	j.SetWriter(buf)
	c.SetJournal(j)

	n, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Each changelist is described then synced, in replay order
	p4cmds := make([]string, 0)
	for _, cmd := range fake.Commands() {
		p4cmds = append(p4cmds, strings.Join(cmd[1:], " "))
	}
	assert.Equal(t, []string{
		"changes -t -s submitted //depot/proj/...",
		"changes -l @=100", "-c alice_ws sync -f //depot/proj/...@100,@100",
		"changes -l @=101", "-c alice_ws sync -f //depot/proj/...@101,@101",
		"changes -l @=102", "-c alice_ws sync -f //depot/proj/...@102,@102",
	}, p4cmds)

	repo, err := gogit.PlainOpen(out)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	iter, err := repo.Log(&gogit.LogOptions{From: head.Hash()})
	require.NoError(t, err)
	commits := make([]*object.Commit, 0)
	require.NoError(t, iter.ForEach(func(c *object.Commit) error {
		commits = append([]*object.Commit{c}, commits...) // oldest first
		return nil
	}))
	require.Equal(t, 3, len(commits))

	expectedDates := []time.Time{
		time.Date(2021, 3, 4, 12, 34, 56, 0, time.Local),
		time.Date(2021, 3, 5, 18, 30, 0, 0, time.Local),
		time.Date(2021, 3, 6, 9, 0, 1, 0, time.Local),
	}
	expectedMsgs := []string{"Initial import", "Fix bug\nSee JIRA-123", "Move d"}
	for i, cmt := range commits {
		assert.Equal(t, "Alice A", cmt.Author.Name)
		assert.Equal(t, "alice@x.com", cmt.Author.Email)
		assert.Equal(t, "Alice A", cmt.Committer.Name)
		assert.True(t, cmt.Author.When.Equal(expectedDates[i]), "commit %d date %v", i, cmt.Author.When)
		assert.Equal(t, expectedMsgs[i], cmt.Message)
		if i > 0 {
			assert.False(t, cmt.Author.When.Before(commits[i-1].Author.When))
		}
	}

	// Each commit tree matches its revision exactly
	for i, rev := range []string{"100", "101", "102"} {
		ctree, err := commits[i].Tree()
		require.NoError(t, err)
		files := make(map[string]string)
		require.NoError(t, ctree.Files().ForEach(func(f *object.File) error {
			contents, err := f.Contents()
			files[f.Name] = contents
			return err
		}))
		assert.Equal(t, revisions[rev], files, "revision %s", rev)
	}

	// Working tree left at the last revision
	assert.NoFileExists(t, filepath.Join(out, "a.txt"))
	assert.NoDirExists(t, filepath.Join(out, "dir"))
	assert.FileExists(t, filepath.Join(out, "newdir", "d.txt"))
	assert.DirExists(t, filepath.Join(out, ".git"))

	records, err := journal.ReadJournal(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Equal(t, 3, len(records))
	assert.Equal(t, "100", records[0].Change)
	assert.Equal(t, commits[0].Hash.String(), records[0].Commit)
	assert.Equal(t, "102", records[2].Change)
	assert.Equal(t, head.Hash().String(), records[2].Commit)
}

func TestUnmappedUserNoCommits(t *testing.T) {
	changes := `Change 102 on 2021/03/06 09:00:01 by alice@alice_ws 'Move d '
Change 101 on 2021/03/05 18:30:00 by mallory@m_ws 'Fix bug '
Change 100 on 2021/03/04 12:34:56 by alice@alice_ws 'Initial import '
`
	repo := &recordingRepo{}
	c, _, fake, _ := setup(t, changes, repo)
	n, err := c.Run()
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, identity.CodeUnmappedUser, perrors.GetCode(err))
	assert.Contains(t, err.Error(), "mallory")
	assert.Equal(t, 0, repo.inits)
	assert.Equal(t, 0, len(repo.commits))
	assert.Equal(t, 1, len(fake.Calls)) // only p4 changes
}

func TestMalformedChangeNoCommits(t *testing.T) {
	changes := `Change 101 on 2021/03/05 18:30:00 by alice@alice_ws 'Fix bug '
Change 100 on 2021/03/04 by alice@alice_ws 'Initial import '
`
	repo := &recordingRepo{}
	c, _, _, _ := setup(t, changes, repo)
	n, err := c.Run()
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, p4.CodeMalformedChange, perrors.GetCode(err))
	assert.Equal(t, 0, repo.inits)
	assert.Equal(t, 0, len(repo.commits))
}

func TestSyncFailureKeepsPrefix(t *testing.T) {
	repo := &recordingRepo{}
	c, pf, _, _ := setup(t, threeChanges, repo)
	pf.failSync = "101"
	n, err := c.Run()
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, perrors.CodeExecutionFailed, perrors.GetCode(err))
	assert.Contains(t, err.Error(), "Connect to server failed")
	require.Equal(t, 1, len(repo.commits))
	assert.Equal(t, "Initial import", repo.commits[0].Message)
	assert.Equal(t, "2021-03-04T12:34:56", repo.commits[0].Date)
	assert.Equal(t, "Alice A <alice@x.com>", repo.commits[0].Author.String())
	assert.Equal(t, []string{"a.txt", "b.txt", "dir/d.txt"}, repo.commits[0].Tree.Root.GetFiles(""))
}

func TestNoChanges(t *testing.T) {
	repo := &recordingRepo{}
	c, _, _, _ := setup(t, "", repo)
	n, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, repo.inits)
}

func TestConvertWithGitCLI(t *testing.T) {
	logger := createLogger()
	ws := t.TempDir()
	out := t.TempDir()
	pf := &p4Fake{t: t, workspace: ws, changes: threeChanges}
	gitFake := fakeexec.New(nil)
	repo := gitrepo.NewCLIRepository(logger, gitFake, "git", out)
	opts := Options{OutputPath: out, WorkspacePath: ws, P4Workspace: "alice_ws", DepotPath: depotPath}
	c := NewConverter(logger, opts, p4.NewClient(logger, fakeexec.New(pf.handle), "p4", nil), newResolver(),
		tree.NewMaterializer(logger, nil), repo)
	n, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dates := make([]string, 0)
	for _, call := range gitFake.Calls {
		if call.Args[3] == "commit" {
			dates = append(dates, call.Env["GIT_COMMITTER_DATE"])
		}
	}
	assert.Equal(t, []string{"2021-03-04T12:34:56", "2021-03-05T18:30:00", "2021-03-06T09:00:01"}, dates)
	assert.Equal(t, []string{"git", "-C", out, "init"}, gitFake.Calls[0].Args)
	assert.Equal(t, 1+3*3, len(gitFake.Calls))
}
