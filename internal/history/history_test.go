package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "data", "history.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRecentOrdering(t *testing.T) {
	h := openTemp(t)
	base := time.Unix(1700000000, 0)
	for i, name := range []string{"q2dm1", "q2dm2", "q2dm1", "q2dm8"} {
		if err := h.Record(Play{Map: name, GameType: "ffa", Players: 4, PlayedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	plays, err := h.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(plays) != 3 || plays[0].Map != "q2dm8" || plays[1].Map != "q2dm1" || plays[2].Map != "q2dm2" {
		t.Fatalf("recent = %+v", plays)
	}
	if !plays[0].PlayedAt.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("played_at = %v", plays[0].PlayedAt)
	}

	maps, err := h.RecentMaps(4)
	if err != nil {
		t.Fatalf("recent maps: %v", err)
	}
	if len(maps) != 3 || maps[0] != "q2dm8" || maps[1] != "q2dm1" || maps[2] != "q2dm2" {
		t.Fatalf("recent maps = %v", maps)
	}
}

func TestPlayCount(t *testing.T) {
	h := openTemp(t)
	for _, name := range []string{"q2dm1", "Q2DM1", "q2dm2"} {
		if err := h.Record(Play{Map: name}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	n, err := h.PlayCount("q2dm1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	if n, _ := h.PlayCount("nope"); n != 0 {
		t.Fatalf("count of unplayed map = %d", n)
	}
}

func TestRecordRejectsEmptyMap(t *testing.T) {
	h := openTemp(t)
	if err := h.Record(Play{}); err == nil {
		t.Fatalf("empty map should fail")
	}
	if plays, _ := h.Recent(10); len(plays) != 0 {
		t.Fatalf("plays = %v", plays)
	}
}
