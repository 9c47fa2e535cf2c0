package ps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/orpheusplus/core"
)

// TreeEntry is a directory entry of the metadata tree.
type TreeEntry struct {
	Name  string
	IsDir bool
}

// Read returns the contents of filePath at HEAD. Missing files return
// ErrNotFound.
func (p *Persistence) Read(filePath string) ([]byte, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	tree, err := p.headTree()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("%s: %w", filePath, ErrNotFound)
	}

	file, err := tree.File(filePath)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s: %w", filePath, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return []byte(content), nil
}

// Exists reports whether filePath is a file or directory at HEAD.
func (p *Persistence) Exists(filePath string) bool {
	if !p.IsInitialized() {
		return false
	}
	tree, err := p.headTree()
	if err != nil || tree == nil {
		return false
	}
	_, err = tree.FindEntry(strings.Trim(filePath, "/"))
	return err == nil
}

// List returns the entries of dirPath at HEAD. A missing directory is empty.
func (p *Persistence) List(dirPath string) ([]TreeEntry, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	tree, err := p.headTree()
	if err != nil || tree == nil {
		return nil, err
	}

	target := tree
	if dirPath != "" && dirPath != "." {
		target, err = tree.Tree(dirPath)
		if err != nil {
			return nil, nil
		}
	}

	entries := make([]TreeEntry, 0, len(target.Entries))
	for _, entry := range target.Entries {
		entries = append(entries, TreeEntry{
			Name:  entry.Name,
			IsDir: entry.Mode == filemode.Dir,
		})
	}
	return entries, nil
}

// Write stores a single file in its own commit.
func (p *Persistence) Write(filePath string, data []byte, identity core.Identity, message string) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}

	blobHash, err := p.createBlob(data)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to create blob: %w", err)
	}
	return p.commitChanges([]TreeChange{{Path: filePath, BlobHash: blobHash}}, identity, message)
}

// Delete removes files or whole directories in one commit.
func (p *Persistence) Delete(paths []string, identity core.Identity, message string) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}

	changes := make([]TreeChange, len(paths))
	for i, filePath := range paths {
		changes[i] = TreeChange{Path: filePath, IsDelete: true}
	}
	return p.commitChanges(changes, identity, message)
}
