package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePlaylist(t *testing.T, dir, channel, date string, pl Playlist) {
	t.Helper()
	raw, err := json.Marshal(pl)
	if err != nil {
		t.Fatalf("marshal fixture playlist: %v", err)
	}
	path := filepath.Join(dir, channel+"-"+date+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write fixture playlist: %v", err)
	}
}

func TestPlaylistIteratorWalksProgram(t *testing.T) {
	dir := t.TempDir()
	writePlaylist(t, dir, "morning", "2026-07-31", Playlist{
		Channel: "morning",
		Date:    "2026-07-31",
		Program: []PlaylistEntry{
			{Source: "clip1.mp4", In: 0, Out: 30},
			{Source: "clip2.mp4", In: 0, Out: 45},
		},
	})

	it := NewPlaylistIterator(dir, "morning")
	it.now = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	ctx := context.Background()

	n1, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if n1 == nil || n1.Source != "clip1.mp4" {
		t.Fatalf("expected clip1.mp4 first, got %v", n1)
	}

	n2, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if n2 == nil || n2.Source != "clip2.mp4" {
		t.Fatalf("expected clip2.mp4 second, got %v", n2)
	}

	n3, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if n3 != nil {
		t.Errorf("expected nil at end of day's program, got %v", n3)
	}
}

func TestPlaylistIteratorMissingFileIsEndOfSchedule(t *testing.T) {
	dir := t.TempDir()
	it := NewPlaylistIterator(dir, "morning")
	it.now = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	node, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v, want nil error for a missing playlist file", err)
	}
	if node != nil {
		t.Errorf("expected nil node for a missing playlist file, got %v", node)
	}
}

func TestPlaylistIteratorSkipsZeroLengthEntry(t *testing.T) {
	dir := t.TempDir()
	writePlaylist(t, dir, "morning", "2026-07-31", Playlist{
		Program: []PlaylistEntry{
			{Source: "empty.mp4", In: 10, Out: 10},
		},
	})

	it := NewPlaylistIterator(dir, "morning")
	it.now = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	node, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if node == nil || !node.Skip {
		t.Errorf("expected a skip-marked node for a zero-length entry, got %v", node)
	}
}

func TestPlaylistIteratorAdvancesAcrossMidnight(t *testing.T) {
	dir := t.TempDir()
	writePlaylist(t, dir, "morning", "2026-07-31", Playlist{
		Program: []PlaylistEntry{{Source: "day1.mp4", In: 0, Out: 30}},
	})
	writePlaylist(t, dir, "morning", "2026-08-01", Playlist{
		Program: []PlaylistEntry{{Source: "day2.mp4", In: 0, Out: 30}},
	})

	it := NewPlaylistIterator(dir, "morning")
	current := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	it.now = func() time.Time { return current }

	ctx := context.Background()
	if n, err := it.Next(ctx); err != nil || n == nil || n.Source != "day1.mp4" {
		t.Fatalf("expected day1.mp4, got node=%v err=%v", n, err)
	}
	if n, err := it.Next(ctx); err != nil || n != nil {
		t.Fatalf("expected end of day 1's program, got node=%v err=%v", n, err)
	}

	current = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if n, err := it.Next(ctx); err != nil || n == nil || n.Source != "day2.mp4" {
		t.Fatalf("expected day2.mp4 after advancing to next day, got node=%v err=%v", n, err)
	}
}

func TestPlaylistIteratorReseedFromWallClock(t *testing.T) {
	dir := t.TempDir()
	writePlaylist(t, dir, "morning", "2026-07-31", Playlist{
		Program: []PlaylistEntry{
			{Source: "clip1.mp4", In: 0, Out: 30},
			{Source: "clip2.mp4", In: 0, Out: 30},
			{Source: "clip3.mp4", In: 0, Out: 30},
		},
	})

	it := NewPlaylistIterator(dir, "morning")
	// 45 seconds into the day falls inside clip2's 30-60s slot.
	it.now = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 45, 0, time.UTC) }
	it.RequestReseed()

	node, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if node == nil || node.Source != "clip2.mp4" {
		t.Errorf("expected reseed to land on clip2.mp4, got %v", node)
	}
}
