// Package tree rebuilds the git working tree from a synced Perforce workspace.
//
// Rather than computing a diff, each changelist's tree is rebuilt from scratch:
// Clear empties the repository working tree (keeping .git) and Materialize copies
// the complete workspace in. After both, the working tree is exactly the workspace
// tree, so deletes and renames in Perforce are captured without tracking them.
package tree

import (
	"io"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	perrors "github.com/jmgilman/go/errors"
	"github.com/rcowham/p4gittransfer/node"
	"github.com/sirupsen/logrus"
	shutil "github.com/termie/go-shutil"
)

// CodeFilesystem - a file could not be copied, removed or read
const CodeFilesystem perrors.ErrorCode = "FILESYSTEM_ERROR"

// GitDir - the repository metadata directory, never cleared or copied
const GitDir = ".git"

// Stats - summary of a materialized tree
type Stats struct {
	Files    int
	Symlinks int
	Text     int
	Binary   int
	Bytes    int64
}

// Tree - the files of a materialized changelist
type Tree struct {
	Root  *node.Node
	Stats Stats
}

// Materializer copies workspace trees into the repository
type Materializer struct {
	logger *logrus.Logger
	ignore map[string]bool
}

// NewMaterializer - ignoreFiles are names (not paths) skipped at any level, e.g. .gitignore
func NewMaterializer(logger *logrus.Logger, ignoreFiles []string) *Materializer {
	m := &Materializer{logger: logger, ignore: map[string]bool{GitDir: true}}
	for _, f := range ignoreFiles {
		m.ignore[f] = true
	}
	return m
}

func fsError(err error, msg, path string) error {
	return perrors.WithContext(perrors.Wrap(err, CodeFilesystem, msg), "path", path)
}

// Clear removes every entry in repoPath except the .git directory, hidden entries included
func (m *Materializer) Clear(repoPath string) error {
	entries, err := os.ReadDir(repoPath)
	if err != nil {
		return fsError(err, "failed to read repository dir", repoPath)
	}
	for _, e := range entries {
		if e.Name() == GitDir {
			continue
		}
		p := filepath.Join(repoPath, e.Name())
		if err := os.RemoveAll(p); err != nil {
			return fsError(err, "failed to remove", p)
		}
	}
	return nil
}

func (m *Materializer) ignoreNames(dir string, entries []os.FileInfo) []string {
	ignored := make([]string, 0)
	for _, e := range entries {
		if m.ignore[e.Name()] {
			ignored = append(ignored, e.Name())
		}
	}
	return ignored
}

// Materialize copies the workspace tree into repoPath, which should be empty apart from .git.
// Directories keep their permission bits, symlinks are recreated as links and
// files keep permissions and modification times.
func (m *Materializer) Materialize(workspace, repoPath string) (*Tree, error) {
	entries, err := os.ReadDir(workspace)
	if err != nil {
		return nil, fsError(err, "failed to read workspace", workspace)
	}
	opts := &shutil.CopyTreeOptions{
		Symlinks:     false, // links are passed to copyEntry, which recreates them
		Ignore:       m.ignoreNames,
		CopyFunction: m.copyEntry,
	}
	for _, e := range entries {
		if m.ignore[e.Name()] {
			continue
		}
		src := filepath.Join(workspace, e.Name())
		dst := filepath.Join(repoPath, e.Name())
		fi, err := os.Lstat(src)
		if err != nil {
			return nil, fsError(err, "failed to stat", src)
		}
		if fi.IsDir() {
			if err := shutil.CopyTree(src, dst, opts); err != nil {
				return nil, fsError(err, "failed to copy directory", src)
			}
			if err := copyDirModes(src, dst); err != nil {
				return nil, err
			}
		} else if _, err := m.copyEntry(src, dst, false); err != nil {
			return nil, fsError(err, "failed to copy", src)
		}
	}
	return m.Scan(repoPath)
}

// copyEntry has the signature of shutil.Copy so that it can be used as a CopyTree copy function
func (m *Materializer) copyEntry(src, dst string, followSymlinks bool) (string, error) {
	fi, err := os.Lstat(src)
	if err != nil {
		return dst, err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return dst, m.copySymlink(src, dst, fi)
	}
	if _, err := shutil.Copy(src, dst, false); err != nil {
		return dst, err
	}
	return dst, os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

func (m *Materializer) copySymlink(src, dst string, fi os.FileInfo) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	if err := os.Symlink(target, dst); err != nil {
		m.logger.Warnf("Failed to create symlink %s -> %s: %v. Copying contents instead", dst, target, err)
		_, err = shutil.Copy(src, dst, true)
		return err
	}
	// Go has no lchmod, so link permissions can only be reported, not copied
	if dfi, err := os.Lstat(dst); err == nil && dfi.Mode().Perm() != fi.Mode().Perm() {
		m.logger.Warnf("Symlink permissions not copied for %s: %v (source %v)", dst, dfi.Mode().Perm(), fi.Mode().Perm())
	}
	return nil
}

// CopyTree creates directories subject to umask, so reapply the source modes
func copyDirModes(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fsError(err, "failed to walk", path)
		}
		if !info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fsError(err, "failed to walk", path)
		}
		target := filepath.Join(dst, rel)
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			return filepath.SkipDir // ignored
		}
		if err := os.Chmod(target, info.Mode().Perm()); err != nil {
			return fsError(err, "failed to set mode", target)
		}
		return nil
	})
}

// Scan lists the files under repoPath (excluding .git) and classifies them
func (m *Materializer) Scan(repoPath string) (*Tree, error) {
	t := &Tree{Root: &node.Node{Name: ""}}
	err := filepath.Walk(repoPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fsError(err, "failed to walk", path)
		}
		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return fsError(err, "failed to walk", path)
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() {
			if rel == GitDir {
				return filepath.SkipDir
			}
			return nil
		}
		t.Root.AddFile(filepath.ToSlash(rel))
		t.Stats.Files++
		if info.Mode()&os.ModeSymlink != 0 {
			t.Stats.Symlinks++
			return nil
		}
		t.Stats.Bytes += info.Size()
		binary, err := isBinary(path)
		if err != nil {
			return fsError(err, "failed to read", path)
		}
		if binary {
			t.Stats.Binary++
		} else {
			t.Stats.Text++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Same classification as used for Perforce filetypes: images, video, audio,
// archives and documents are binary, everything else is text.
func isBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	head = head[:n]
	return filetype.IsImage(head) || filetype.IsVideo(head) || filetype.IsArchive(head) ||
		filetype.IsAudio(head) || filetype.IsDocument(head), nil
}
