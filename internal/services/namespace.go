package services

import (
	"os"
	"path/filepath"

	"recetario/pkg/utils"
)

// Namespace maps a username to its on-disk upload subtree and keeps that
// subtree in lockstep with identity mutations. It holds no locks of its own:
// callers sequence renames and deletes for a given username.
type Namespace struct {
	root string
}

func NewNamespace(root string) *Namespace {
	return &Namespace{root: root}
}

// Dir returns the absolute directory for a username. The path is a pure
// function of the current username.
func (n *Namespace) Dir(username string) string {
	return filepath.Join(n.root, utils.NormalizeUsername(username))
}

// PublicPath composes the storage-root-relative URL path for a file in the
// user's namespace. On-disk absolute paths never leave this package.
func (n *Namespace) PublicPath(username, filename string) string {
	return "/uploads/users/" + utils.NormalizeUsername(username) + "/" + filename
}

// Ensure idempotently creates the user's subtree.
func (n *Namespace) Ensure(username string) error {
	if err := os.MkdirAll(n.Dir(username), 0o755); err != nil {
		return &StorageError{Op: "namespace create", Err: err}
	}
	return nil
}

// Rename moves the subtree to a new username. A missing source is treated as
// already migrated and is not an error.
func (n *Namespace) Rename(oldUsername, newUsername string) error {
	oldDir := n.Dir(oldUsername)
	if _, err := os.Stat(oldDir); os.IsNotExist(err) {
		return nil
	}
	if err := os.Rename(oldDir, n.Dir(newUsername)); err != nil {
		return &StorageError{Op: "namespace rename", Err: err}
	}
	return nil
}

// Delete recursively removes the subtree. Idempotent if already absent.
func (n *Namespace) Delete(username string) error {
	if err := os.RemoveAll(n.Dir(username)); err != nil {
		return &StorageError{Op: "namespace delete", Err: err}
	}
	return nil
}
