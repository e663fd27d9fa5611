//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of LaunchETL.
//
// LaunchETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// LaunchETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with LaunchETL. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aaronlmathis/launchetl/core"
)

// AtomicFile is an io.WriteCloser that writes to a temporary file next to
// the destination and only replaces the destination on Commit.
// Close without Commit removes the temporary file and leaves any existing
// destination untouched.
type AtomicFile struct {
	path      string
	tmp       *os.File
	committed bool
	closed    bool
}

// CreateAtomicFile creates the parent directories of path and opens a
// temporary file in the same directory.
func CreateAtomicFile(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory %s: %w", core.ErrWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temporary file in %s: %w", core.ErrWrite, dir, err)
	}

	return &AtomicFile{path: path, tmp: tmp}, nil
}

// Path returns the destination path.
func (f *AtomicFile) Path() string {
	return f.path
}

// Write implements io.Writer.
func (f *AtomicFile) Write(p []byte) (int, error) {
	n, err := f.tmp.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", core.ErrWrite, err)
	}
	return n, nil
}

// Commit syncs the temporary file and renames it over the destination.
func (f *AtomicFile) Commit() error {
	if f.committed {
		return nil
	}
	if f.closed {
		return fmt.Errorf("%w: file %s already discarded", core.ErrWrite, f.path)
	}
	if err := f.tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync %s: %w", core.ErrWrite, f.tmp.Name(), err)
	}
	if err := f.tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %w", core.ErrWrite, f.tmp.Name(), err)
	}
	f.closed = true
	if err := os.Chmod(f.tmp.Name(), 0644); err != nil {
		return fmt.Errorf("%w: failed to chmod %s: %w", core.ErrWrite, f.tmp.Name(), err)
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		_ = os.Remove(f.tmp.Name())
		return fmt.Errorf("%w: failed to replace %s: %w", core.ErrWrite, f.path, err)
	}
	f.committed = true
	return nil
}

// Close implements io.Closer. Uncommitted data is discarded.
func (f *AtomicFile) Close() error {
	if f.committed {
		return nil
	}
	if !f.closed {
		f.closed = true
		_ = f.tmp.Close()
	}
	if err := os.Remove(f.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to remove %s: %w", core.ErrWrite, f.tmp.Name(), err)
	}
	return nil
}
