// Zaparoo Backup
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Backup.
//
// Zaparoo Backup is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Backup is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Backup.  If not, see <http://www.gnu.org/licenses/>.

package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

const compareChunkSize = 64 * 1024

// ComputeMissing walks sourceRoot in lexical order and returns every regular
// file that has no byte-identical file with the same name anywhere under
// destRoot. A destRoot that doesn't exist yet is treated as empty.
func ComputeMissing(ctx context.Context, afs afero.Fs, sourceRoot, destRoot string) ([]string, error) {
	info, err := afs.Stat(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", sourceRoot)
	}

	index, err := indexByName(ctx, afs, destRoot)
	if err != nil {
		return nil, err
	}

	var missing []string
	err = afero.Walk(afs, sourceRoot, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		found, err := hasIdentical(afs, path, index[info.Name()])
		if err != nil {
			return err
		}
		if !found {
			missing = append(missing, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source %s: %w", sourceRoot, err)
	}

	return missing, nil
}

// indexByName maps base names to every regular file under root with that
// name.
func indexByName(ctx context.Context, afs afero.Fs, root string) (map[string][]string, error) {
	index := make(map[string][]string)

	if _, err := afs.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return index, nil
		}
		return nil, fmt.Errorf("failed to stat destination: %w", err)
	}

	err := afero.Walk(afs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			index[info.Name()] = append(index[info.Name()], path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk destination %s: %w", root, err)
	}

	return index, nil
}

func hasIdentical(afs afero.Fs, path string, candidates []string) (bool, error) {
	for _, candidate := range candidates {
		same, err := FilesEqual(afs, path, candidate)
		if err != nil {
			return false, err
		}
		if same {
			return true, nil
		}
	}
	return false, nil
}

// FilesEqual compares the full contents of two files.
func FilesEqual(afs afero.Fs, a, b string) (bool, error) {
	fa, err := afs.Open(a)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", a, err)
	}
	defer func() { _ = fa.Close() }()

	fb, err := afs.Open(b)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", b, err)
	}
	defer func() { _ = fb.Close() }()

	bufA := make([]byte, compareChunkSize)
	bufB := make([]byte, compareChunkSize)
	for {
		na, errA := io.ReadFull(fa, bufA)
		if errA != nil && !isEOF(errA) {
			return false, fmt.Errorf("failed to read %s: %w", a, errA)
		}
		nb, errB := io.ReadFull(fb, bufB)
		if errB != nil && !isEOF(errB) {
			return false, fmt.Errorf("failed to read %s: %w", b, errB)
		}

		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		// equal chunks of the same length either both filled the buffer
		// or both hit the end
		if errA != nil {
			return true, nil
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
