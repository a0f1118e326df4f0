package node

import (
	"sort"
	"strings"
)

// Node - tree structure recording the files of a materialized changelist.
// Paths are relative to the repository root and use '/' separators.
// A new tree is built after every changelist is materialized, so that we can
// report files removed since the previous changelist and list the files to export.
type Node struct {
	Name     string
	Path     string
	IsFile   bool
	Children []*Node
}

func (n *Node) addSubFile(fullPath string, subPath string) {
	parts := strings.SplitN(subPath, "/", 2)
	if len(parts) == 1 {
		for _, c := range n.Children {
			if c.Name == parts[0] {
				return // file already registered
			}
		}
		n.Children = append(n.Children, &Node{Name: parts[0], IsFile: true, Path: fullPath})
		return
	}
	for _, c := range n.Children {
		if c.Name == parts[0] && !c.IsFile {
			c.addSubFile(fullPath, parts[1])
			return
		}
	}
	dir := &Node{Name: parts[0]}
	n.Children = append(n.Children, dir)
	dir.addSubFile(fullPath, parts[1])
}

func (n *Node) AddFile(path string) {
	n.addSubFile(path, path)
}

func (n *Node) getChildFiles() []string {
	files := make([]string, 0)
	for _, c := range n.Children {
		if c.IsFile {
			files = append(files, c.Path)
		} else {
			files = append(files, c.getChildFiles()...)
		}
	}
	return files
}

// GetFiles returns a sorted list of all files under dirName ("" for the whole tree)
func (n *Node) GetFiles(dirName string) []string {
	var files []string
	if dirName == "" {
		files = n.getChildFiles()
	} else {
		files = make([]string, 0)
		parts := strings.SplitN(dirName, "/", 2)
		for _, c := range n.Children {
			if c.Name != parts[0] {
				continue
			}
			if len(parts) == 2 {
				if !c.IsFile {
					files = c.GetFiles(parts[1])
				}
			} else if c.IsFile {
				files = append(files, c.Path)
			} else {
				files = c.getChildFiles()
			}
			break
		}
	}
	sort.Strings(files)
	return files
}

// FindFile returns true if it finds a single file with specified name
func (n *Node) FindFile(fileName string) bool {
	parts := strings.SplitN(fileName, "/", 2)
	for _, c := range n.Children {
		if c.Name == parts[0] {
			if len(parts) == 1 {
				return c.IsFile
			}
			return !c.IsFile && c.FindFile(parts[1])
		}
	}
	return false
}

// Removed lists files present in prev but not in n - deletes and rename sources
func (n *Node) Removed(prev *Node) []string {
	removed := make([]string, 0)
	if prev == nil {
		return removed
	}
	for _, f := range prev.GetFiles("") {
		if !n.FindFile(f) {
			removed = append(removed, f)
		}
	}
	return removed
}
