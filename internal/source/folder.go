// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ffplayout/playoutd/internal/playout"
)

// defaultClipSeconds is the assumed play length for a folder-mode entry,
// since folder mode has no per-file in/out metadata to draw on.
const defaultClipSeconds = 300.0

// FolderIterator lists a directory of media files, sorted by name, and
// loops over them indefinitely. It re-scans the directory whenever told to
// re-seed, picking up files added or removed since the last listing.
type FolderIterator struct {
	dir string

	mu      sync.Mutex
	entries []string
	pos     int
	reseed  bool
}

// NewFolderIterator returns an iterator looping over the media files in dir.
func NewFolderIterator(dir string) *FolderIterator {
	return &FolderIterator{dir: dir, reseed: true}
}

// RequestReseed tells the iterator to re-scan the directory and restart its
// listing from the top on the next Next call.
func (it *FolderIterator) RequestReseed() {
	it.mu.Lock()
	it.reseed = true
	it.mu.Unlock()
}

func (it *FolderIterator) rescan() error {
	dirEntries, err := os.ReadDir(it.dir)
	if err != nil {
		return fmt.Errorf("list folder %s: %w", it.dir, err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	it.entries = names
	it.pos = 0
	return nil
}

// Next returns the next file in the directory listing, wrapping back to the
// first entry once the listing is exhausted. Returns (nil, nil) only when
// the directory holds no playable files at all.
func (it *FolderIterator) Next(ctx context.Context) (*playout.Node, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.reseed || it.entries == nil {
		if err := it.rescan(); err != nil {
			return nil, err
		}
		it.reseed = false
	}

	if len(it.entries) == 0 {
		return nil, nil
	}

	if it.pos >= len(it.entries) {
		it.pos = 0
	}

	name := it.entries[it.pos]
	it.pos++

	path := filepath.Join(it.dir, name)
	return &playout.Node{
		Source:   path,
		Cmd:      []string{"-i", path},
		Seek:     0,
		Out:      defaultClipSeconds,
		Index:    it.pos - 1,
		HasIndex: true,
	}, nil
}
