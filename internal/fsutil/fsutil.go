// Package fsutil implements the encodemgr.FSUtil collaborator against the
// real filesystem.
package fsutil

import "os"

// FSUtil is a thin os wrapper. It exists so encodemgr can be tested
// against a fake without touching disk.
type FSUtil struct{}

// New constructs an FSUtil backed by the local filesystem.
func New() *FSUtil { return &FSUtil{} }

func (FSUtil) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

func (FSUtil) MkdirAll(path string) error { return os.MkdirAll(path, 0o755) }

func (FSUtil) Remove(path string) error { return os.Remove(path) }
