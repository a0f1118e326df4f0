package gitrepo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	perrors "github.com/jmgilman/go/errors"
	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/rcowham/p4gittransfer/tree"
	"github.com/sirupsen/logrus"
)

// git tree entry modes
const (
	modeFile    = libfastimport.Mode(0100644)
	modeExec    = libfastimport.Mode(0100755)
	modeSymlink = libfastimport.Mode(0120000)
)

type bufWriteCloser struct {
	w io.WriteCloser
	*bufio.Writer
}

func (bwc *bufWriteCloser) Close() error {
	if err := bwc.Flush(); err != nil {
		return err
	}
	return bwc.w.Close()
}

// FastImportRepository - writes a git fast-import stream instead of a repository.
// Each changelist becomes blobs for every file followed by a commit which starts with
// deleteall, so the commit tree is exactly the materialized tree.
// Load with: git init repo && git -C repo fast-import < file
type FastImportRepository struct {
	logger   *logrus.Logger
	path     string // materialized tree
	filename string
	branch   string
	out      *bufWriteCloser
	backend  *libfastimport.Backend
	mark     int
}

func NewFastImportRepository(logger *logrus.Logger, path string, filename string, branch string) *FastImportRepository {
	return &FastImportRepository{logger: logger, path: path, filename: filename, branch: branch}
}

func (r *FastImportRepository) Init() error {
	f, err := os.Create(r.filename)
	if err != nil {
		return perrors.Wrapf(err, tree.CodeFilesystem, "failed to create %s", r.filename)
	}
	r.setWriter(f)
	return nil
}

func (r *FastImportRepository) setWriter(w io.WriteCloser) {
	r.out = &bufWriteCloser{w, bufio.NewWriter(w)}
	r.backend = libfastimport.NewBackend(r.out, nil, nil)
}

func (r *FastImportRepository) nextMark() int {
	r.mark++
	return r.mark
}

func (r *FastImportRepository) fileData(name string) (libfastimport.Mode, string, error) {
	p := filepath.Join(r.path, filepath.FromSlash(name))
	fi, err := os.Lstat(p)
	if err != nil {
		return 0, "", err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(p)
		return modeSymlink, target, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return 0, "", err
	}
	if fi.Mode().Perm()&0111 != 0 {
		return modeExec, string(data), nil
	}
	return modeFile, string(data), nil
}

func (r *FastImportRepository) do(cmd libfastimport.Cmd) error {
	if err := r.backend.Do(cmd); err != nil {
		return perrors.Wrap(err, perrors.CodeExecutionFailed, "failed to write fast-import stream")
	}
	return nil
}

func (r *FastImportRepository) Commit(c Commit) (string, error) {
	when, err := c.When()
	if err != nil {
		return "", err
	}
	files := make([]libfastimport.FileModify, 0)
	if c.Tree != nil {
		for _, name := range c.Tree.Root.GetFiles("") {
			mode, data, err := r.fileData(name)
			if err != nil {
				return "", perrors.Wrapf(err, tree.CodeFilesystem, "failed to read %s", name)
			}
			blob := libfastimport.CmdBlob{Mark: r.nextMark(), Data: data}
			if err := r.do(blob); err != nil {
				return "", err
			}
			files = append(files, libfastimport.FileModify{
				Mode:    mode,
				Path:    libfastimport.Path(name),
				DataRef: fmt.Sprintf(":%d", blob.Mark),
			})
		}
	}
	ident := libfastimport.Ident{Name: c.Author.Name, Email: c.Author.Email, Time: when}
	commit := libfastimport.CmdCommit{
		Ref:       "refs/heads/" + r.branch,
		Mark:      r.nextMark(),
		Author:    &ident,
		Committer: ident,
		Msg:       c.Message + "\n",
	}
	r.logger.Debugf("fast-import commit mark :%d files %d", commit.Mark, len(files))
	if err := r.do(commit); err != nil {
		return "", err
	}
	if err := r.do(libfastimport.FileDeleteAll{}); err != nil {
		return "", err
	}
	for _, f := range files {
		if err := r.do(f); err != nil {
			return "", err
		}
	}
	if err := r.do(libfastimport.CmdCommitEnd{}); err != nil {
		return "", err
	}
	if err := r.out.Flush(); err != nil {
		return "", perrors.Wrapf(err, tree.CodeFilesystem, "failed to write %s", r.filename)
	}
	return fmt.Sprintf(":%d", commit.Mark), nil
}

func (r *FastImportRepository) Close() error {
	if r.out == nil {
		return nil
	}
	return r.out.Close()
}
