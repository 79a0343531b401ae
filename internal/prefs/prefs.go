package prefs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

var ErrUnknownKey = errors.New("unknown preference")

type validator func(string) bool

func boolValue(v string) bool {
	return v == "0" || v == "1"
}

func oneOf(values ...string) validator {
	return func(v string) bool {
		return slices.Contains(values, v)
	}
}

func intRange(low, high int) validator {
	return func(v string) bool {
		n, err := strconv.Atoi(v)
		return err == nil && n >= low && n <= high
	}
}

var known = map[string]validator{
	"auto_join":      boolValue,
	"preferred_team": oneOf("any", "red", "blue"),
	"show_menu":      boolValue,
	"menu_width":     intRange(16, 64),
	"ready_on_join":  boolValue,
}

func Keys() []string {
	keys := lo.Keys(known)
	slices.Sort(keys)
	return keys
}

func Validate(key, value string) error {
	check, ok := known[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if !check(value) {
		return fmt.Errorf("bad value %q for %s", value, key)
	}
	return nil
}

// SanitizeID maps a social id to a safe file stem.
func SanitizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Store reads and writes one "key value" file per player.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) Path(id string) string {
	stem := SanitizeID(id)
	if stem == "" {
		return ""
	}
	return filepath.Join(s.dir, stem+".cfg")
}

// Import loads a player's preferences. Unknown keys and invalid values are
// skipped with a warning; a missing file yields no preferences.
func (s *Store) Import(id string) (map[string]string, error) {
	out := make(map[string]string)
	path := s.Path(id)
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return out, fmt.Errorf("failed to read prefs: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "//") {
			continue
		}
		key, value, _ := strings.Cut(text, " ")
		value = strings.TrimSpace(value)
		if err := Validate(key, value); err != nil {
			s.logger.Warn("skipping preference", "id", id, "line", line, "error", err)
			continue
		}
		out[key] = value
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("failed to parse prefs: %w", err)
	}
	return out, nil
}

// Export writes the valid entries of p, sorted by key.
func (s *Store) Export(id string, p map[string]string) error {
	path := s.Path(id)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create prefs directory: %w", err)
	}

	keys := lo.Filter(lo.Keys(p), func(k string, _ int) bool {
		return Validate(k, p[k]) == nil
	})
	slices.Sort(keys)

	var b bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %s\n", k, p[k])
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace prefs: %w", err)
	}
	return nil
}
