package tree

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	perrors "github.com/jmgilman/go/errors"
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

func writeToFile(t *testing.T, fname, contents string, mode os.FileMode) {
	require.NoError(t, os.MkdirAll(filepath.Dir(fname), 0755))
	require.NoError(t, os.WriteFile(fname, []byte(contents), mode))
	require.NoError(t, os.Chmod(fname, mode))
}

func readFile(t *testing.T, fname string) string {
	b, err := os.ReadFile(fname)
	require.NoError(t, err)
	return string(b)
}

// Creates a repo dir containing only .git metadata
func createRepo(t *testing.T) string {
	d := t.TempDir()
	writeToFile(t, filepath.Join(d, ".git", "HEAD"), "ref: refs/heads/main\n", 0644)
	return d
}

func TestMaterialize(t *testing.T) {
	ws := t.TempDir()
	repo := createRepo(t)
	writeToFile(t, filepath.Join(ws, "README.md"), "readme\n", 0644)
	writeToFile(t, filepath.Join(ws, "src", "main.c"), "int main() {}\n", 0444)
	writeToFile(t, filepath.Join(ws, "src", "build.sh"), "#!/bin/sh\n", 0755)
	writeToFile(t, filepath.Join(ws, ".gitignore"), "*.o\n", 0644)
	writeToFile(t, filepath.Join(ws, "src", ".gitignore"), "*.a\n", 0644)
	writeToFile(t, filepath.Join(ws, ".hidden"), "x\n", 0644)
	writeToFile(t, filepath.Join(ws, "img.png"), "\x89PNG\r\n\x1a\n0000", 0644)
	require.NoError(t, os.Symlink("src/main.c", filepath.Join(ws, "main.c")))
	require.NoError(t, os.Symlink("main.c", filepath.Join(ws, "src", "link.c")))
	mtime := time.Date(2021, 3, 4, 12, 34, 56, 0, time.Local)
	require.NoError(t, os.Chtimes(filepath.Join(ws, "README.md"), mtime, mtime))

	m := NewMaterializer(createLogger(), []string{".gitignore"})
	tr, err := m.Materialize(ws, repo)
	require.NoError(t, err)

	assert.Equal(t, []string{".hidden", "README.md", "img.png", "main.c", "src/build.sh", "src/link.c", "src/main.c"},
		tr.Root.GetFiles(""))
	assert.Equal(t, 7, tr.Stats.Files)
	assert.Equal(t, 2, tr.Stats.Symlinks)
	assert.Equal(t, 1, tr.Stats.Binary)
	assert.Equal(t, 4, tr.Stats.Text)

	assert.Equal(t, "readme\n", readFile(t, filepath.Join(repo, "README.md")))
	assert.NoFileExists(t, filepath.Join(repo, ".gitignore"))
	assert.NoFileExists(t, filepath.Join(repo, "src", ".gitignore"))
	assert.Equal(t, "ref: refs/heads/main\n", readFile(t, filepath.Join(repo, ".git", "HEAD")))

	fi, err := os.Stat(filepath.Join(repo, "README.md"))
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(mtime))
	if runtime.GOOS != "windows" {
		fi, err = os.Stat(filepath.Join(repo, "src", "build.sh"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0755), fi.Mode().Perm())
		fi, err = os.Stat(filepath.Join(repo, "src", "main.c"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0444), fi.Mode().Perm())

		target, err := os.Readlink(filepath.Join(repo, "main.c"))
		require.NoError(t, err)
		assert.Equal(t, "src/main.c", target)
		target, err = os.Readlink(filepath.Join(repo, "src", "link.c"))
		require.NoError(t, err)
		assert.Equal(t, "main.c", target)
	}
}

func TestClearAndRebuild(t *testing.T) {
	ws := t.TempDir()
	repo := createRepo(t)
	writeToFile(t, filepath.Join(ws, "keep.txt"), "v1\n", 0644)
	writeToFile(t, filepath.Join(ws, "old", "name.txt"), "renamed\n", 0644)
	writeToFile(t, filepath.Join(ws, ".config"), "c\n", 0644)

	m := NewMaterializer(createLogger(), nil)
	first, err := m.Materialize(ws, repo)
	require.NoError(t, err)
	assert.Equal(t, []string{".config", "keep.txt", "old/name.txt"}, first.Root.GetFiles(""))

	// Next revision: edit, rename, delete
	writeToFile(t, filepath.Join(ws, "keep.txt"), "v2\n", 0644)
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "new"), 0755))
	require.NoError(t, os.Rename(filepath.Join(ws, "old", "name.txt"), filepath.Join(ws, "new", "name.txt")))
	require.NoError(t, os.Remove(filepath.Join(ws, "old")))
	require.NoError(t, os.Remove(filepath.Join(ws, ".config")))

	require.NoError(t, m.Clear(repo))
	entries, err := os.ReadDir(repo)
	require.NoError(t, err)
	require.Equal(t, 1, len(entries))
	assert.Equal(t, ".git", entries[0].Name())

	second, err := m.Materialize(ws, repo)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt", "new/name.txt"}, second.Root.GetFiles(""))
	assert.Equal(t, []string{".config", "old/name.txt"}, second.Root.Removed(first.Root))
	assert.Equal(t, "v2\n", readFile(t, filepath.Join(repo, "keep.txt")))
	assert.NoDirExists(t, filepath.Join(repo, "old"))
	assert.NoFileExists(t, filepath.Join(repo, ".config"))
}

func TestMaterializeMissingWorkspace(t *testing.T) {
	m := NewMaterializer(createLogger(), nil)
	_, err := m.Materialize(filepath.Join(t.TempDir(), "nothere"), createRepo(t))
	require.Error(t, err)
	assert.Equal(t, CodeFilesystem, perrors.GetCode(err))

	err = m.Clear(filepath.Join(t.TempDir(), "nothere"))
	require.Error(t, err)
	assert.Equal(t, CodeFilesystem, perrors.GetCode(err))
}
