package idlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidID = errors.New("invalid social id")

// List is a file-backed set of social IDs, one per line. Comments use '#',
// '//' or '/* */'.
type List struct {
	path   string
	ids    map[string]struct{}
	order  []string
	logger *slog.Logger
}

func New(path string, logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.Default()
	}
	return &List{
		path:   path,
		ids:    make(map[string]struct{}),
		logger: logger,
	}
}

func (l *List) Path() string {
	return l.path
}

// Load replaces the in-memory set with the file contents. A missing file is
// an empty list.
func (l *List) Load() error {
	l.ids = make(map[string]struct{})
	l.order = nil

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read id list: %w", err)
	}

	inBlock := false
	for _, line := range splitLines(data) {
		var content string
		content, inBlock = stripComments(line, inBlock)
		id := firstField(content)
		if id == "" {
			continue
		}
		if _, ok := l.ids[id]; ok {
			continue
		}
		l.ids[id] = struct{}{}
		l.order = append(l.order, id)
	}

	l.logger.Debug("id list loaded", "path", l.path, "count", len(l.order))
	return nil
}

func (l *List) Contains(id string) bool {
	_, ok := l.ids[strings.TrimSpace(id)]
	return ok
}

func (l *List) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

func (l *List) Len() int {
	return len(l.order)
}

// Add appends id to the file. It reports false if the id is already listed.
func (l *List) Add(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, " \t\r\n#") || strings.Contains(id, "//") || strings.Contains(id, "/*") {
		return false, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if l.Contains(id) {
		return false, nil
	}

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create id list directory: %w", err)
		}
	}

	prefix := ""
	if data, err := os.ReadFile(l.path); err == nil && len(data) > 0 && data[len(data)-1] != '\n' {
		prefix = "\n"
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open id list: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(prefix + id + "\n"); err != nil {
		return false, fmt.Errorf("failed to append to id list: %w", err)
	}

	l.ids[id] = struct{}{}
	l.order = append(l.order, id)
	return true, nil
}

// Remove drops every line naming id and rewrites the file with all other
// lines kept verbatim.
func (l *List) Remove(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if !l.Contains(id) {
		return false, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to read id list: %w", err)
	}

	var out bytes.Buffer
	inBlock := false
	for _, line := range splitLines(data) {
		var content string
		content, inBlock = stripComments(line, inBlock)
		if firstField(content) == id {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, out.Bytes(), 0644); err != nil {
		return false, fmt.Errorf("failed to write id list: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return false, fmt.Errorf("failed to replace id list: %w", err)
	}

	delete(l.ids, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func splitLines(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	return lines
}

// stripComments returns the non-comment text of line and whether a block
// comment is still open at its end.
func stripComments(line string, inBlock bool) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		if inBlock {
			if strings.HasPrefix(line[i:], "*/") {
				inBlock = false
				i++
			}
			continue
		}
		switch {
		case line[i] == '#', strings.HasPrefix(line[i:], "//"):
			return b.String(), false
		case strings.HasPrefix(line[i:], "/*"):
			inBlock = true
			i++
			b.WriteByte(' ')
		default:
			b.WriteByte(line[i])
		}
	}
	return b.String(), inBlock
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
