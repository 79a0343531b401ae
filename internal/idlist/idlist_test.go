package idlist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sample = `# server admins
steam:1001 // owner
/* retired:
steam:1002
*/
steam:1003
  # indented comment
steam:1004 /* inline */
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admins.txt")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadSkipsComments(t *testing.T) {
	l := New(writeSample(t), nil)
	if err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"steam:1001", "steam:1003", "steam:1004"}
	got := l.IDs()
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
	if l.Contains("steam:1002") {
		t.Fatalf("id inside block comment was loaded")
	}
}

func TestLoadMissingFile(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "none.txt"), nil)
	if err := l.Load(); err != nil {
		t.Fatalf("missing file should be empty, got %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("len = %d", l.Len())
	}
}

func TestRemovePreservesOtherLines(t *testing.T) {
	path := writeSample(t)
	l := New(path, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	ok, err := l.Remove("steam:1003")
	if err != nil || !ok {
		t.Fatalf("remove = %v, %v", ok, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := `# server admins
steam:1001 // owner
/* retired:
steam:1002
*/
  # indented comment
steam:1004 /* inline */
`
	if string(data) != want {
		t.Fatalf("file after remove:\n%s\nwant:\n%s", data, want)
	}
	if l.Contains("steam:1003") {
		t.Fatalf("removed id still in memory")
	}

	if ok, _ := l.Remove("steam:1002"); ok {
		t.Fatalf("commented-out id is not in the list")
	}
}

func TestAddAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "bans.txt")
	l := New(path, nil)

	if ok, err := l.Add("steam:42"); !ok || err != nil {
		t.Fatalf("add = %v, %v", ok, err)
	}
	if ok, err := l.Add("steam:42"); ok || err != nil {
		t.Fatalf("duplicate add = %v, %v", ok, err)
	}
	if _, err := l.Add("two words"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("err = %v, want ErrInvalidID", err)
	}

	reloaded := New(path, nil)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reloaded.Contains("steam:42") {
		t.Fatalf("appended id not persisted")
	}
}
