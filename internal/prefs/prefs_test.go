package prefs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeID(t *testing.T) {
	tests := map[string]string{
		"steam:7656119":    "steam_7656119",
		"../../etc/passwd": "______etc_passwd",
		"  abc-DEF  ":      "abc-DEF",
		"":                 "",
	}
	for in, want := range tests {
		if got := SanitizeID(in); got != want {
			t.Errorf("SanitizeID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("auto_join", "1"); err != nil {
		t.Fatalf("auto_join 1: %v", err)
	}
	if err := Validate("auto_join", "yes"); err == nil {
		t.Fatalf("auto_join yes should fail")
	}
	if err := Validate("menu_width", "80"); err == nil {
		t.Fatalf("menu_width out of range should fail")
	}
	if err := Validate("nope", "1"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("err = %v, want ErrUnknownKey", err)
	}
}

func TestRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "prefs"), nil)
	in := map[string]string{
		"auto_join":      "1",
		"preferred_team": "blue",
		"menu_width":     "32",
		"bogus":          "x",
	}
	if err := s.Export("steam:1", in); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(s.Path("steam:1"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "auto_join 1\nmenu_width 32\npreferred_team blue\n"
	if string(data) != want {
		t.Fatalf("file = %q, want %q", data, want)
	}

	out, err := s.Import("steam:1")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(out) != 3 || out["preferred_team"] != "blue" || out["menu_width"] != "32" {
		t.Fatalf("imported %v", out)
	}
}

func TestImportSkipsBadLines(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	content := "# comment\nauto_join 1\nunknown_key 5\nshow_menu maybe\n\nready_on_join 0\n"
	if err := os.WriteFile(s.Path("p"), []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := s.Import("p")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(out) != 2 || out["auto_join"] != "1" || out["ready_on_join"] != "0" {
		t.Fatalf("imported %v", out)
	}
}

func TestImportMissing(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	out, err := s.Import("nobody")
	if err != nil || len(out) != 0 {
		t.Fatalf("import missing = %v, %v", out, err)
	}
}
