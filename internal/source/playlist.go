// SPDX-License-Identifier: MIT

// Package source supplies node iterators -- schedule-driven and
// folder-driven -- that feed the player loop its sequence of clips.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ffplayout/playoutd/internal/playout"
)

// PlaylistEntry is one scheduled clip within a day's program.
type PlaylistEntry struct {
	Source string  `json:"source"`
	In     float64 `json:"in"`
	Out    float64 `json:"out"`
	Audio  string  `json:"audio,omitempty"`
	Filter string  `json:"filter,omitempty"`
}

// Playlist is one day's schedule, one file per channel per date.
type Playlist struct {
	Channel string          `json:"channel"`
	Date    string          `json:"date"`
	Program []PlaylistEntry `json:"program"`
}

// textFilter adapts a single `-filter_complex` fragment to playout.Filter.
type textFilter struct {
	expr string
}

func (f textFilter) Cmd() []string {
	if f.expr == "" {
		return nil
	}
	return []string{"-filter_complex", f.expr}
}

func (f textFilter) Map() []string {
	if f.expr == "" {
		return nil
	}
	return []string{"-map", "[out]"}
}

// PlaylistIterator walks a dated JSON playlist, advancing across midnight
// onto the next day's file, and re-seeds its position in the current day's
// program whenever a list-init request is observed.
type PlaylistIterator struct {
	dir     string
	channel string

	now func() time.Time

	loadedDate string
	program    []PlaylistEntry
	pos        int

	reseed atomic.Bool
}

// NewPlaylistIterator returns an iterator reading dated JSON playlists named
// "<channel>-YYYY-MM-DD.json" from dir.
func NewPlaylistIterator(dir, channel string) *PlaylistIterator {
	return &PlaylistIterator{dir: dir, channel: channel, now: time.Now}
}

// RequestReseed tells the iterator to recompute its position in the current
// day's program from wall time on its next Next call.
func (it *PlaylistIterator) RequestReseed() {
	it.reseed.Store(true)
}

func (it *PlaylistIterator) playlistPath(date string) string {
	return filepath.Join(it.dir, fmt.Sprintf("%s-%s.json", it.channel, date))
}

func (it *PlaylistIterator) load(date string) error {
	raw, err := os.ReadFile(it.playlistPath(date))
	if err != nil {
		return fmt.Errorf("read playlist for %s: %w", date, err)
	}

	var pl Playlist
	if err := json.Unmarshal(raw, &pl); err != nil {
		return fmt.Errorf("parse playlist for %s: %w", date, err)
	}

	it.loadedDate = date
	it.program = pl.Program
	it.pos = 0
	return nil
}

// seedFromWallClock recomputes it.pos so playback resumes at whichever
// entry wall-clock time currently falls within, summing entry durations
// from the start of the day.
func (it *PlaylistIterator) seedFromWallClock(t time.Time) {
	elapsed := float64(t.Hour()*3600 + t.Minute()*60 + t.Second())
	var acc float64
	for i, e := range it.program {
		dur := e.Out - e.In
		if elapsed < acc+dur {
			it.pos = i
			return
		}
		acc += dur
	}
	it.pos = len(it.program)
}

// Next returns the next node in the program of the current wall-clock
// date, loading that date's playlist whenever the date changes. It returns
// (nil, nil) when the day's program is exhausted or the date's playlist
// file cannot be read or parsed -- an ordinary, recoverable end of
// schedule. The next day's playlist is loaded only once the clock reaches
// that date.
func (it *PlaylistIterator) Next(ctx context.Context) (*playout.Node, error) {
	now := it.now()
	date := now.Format("2006-01-02")

	if it.loadedDate != date {
		if err := it.load(date); err != nil {
			return nil, nil
		}
	}

	if it.reseed.CompareAndSwap(true, false) {
		it.seedFromWallClock(now)
	}

	if it.pos >= len(it.program) {
		return nil, nil
	}

	entry := it.program[it.pos]
	it.pos++

	node := &playout.Node{
		Source:   entry.Source,
		Cmd:      []string{"-i", entry.Source},
		Seek:     entry.In,
		Out:      entry.Out,
		Audio:    entry.Audio,
		Index:    it.pos - 1,
		HasIndex: true,
	}
	if entry.Filter != "" {
		node.Filter = textFilter{expr: entry.Filter}
	}
	if entry.Out-entry.In <= 0 {
		node.Skip = true
	}

	return node, nil
}
