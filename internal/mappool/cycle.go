package mappool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ParseCycle returns the map tokens of a cycle file. Both // line comments
// and /* */ block comments are stripped; an unterminated block comment runs
// to the end of the file.
func ParseCycle(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read map cycle: %w", err)
	}

	var b strings.Builder
	src := string(data)
	for i := 0; i < len(src); i++ {
		if i+1 < len(src) && src[i] == '/' {
			switch src[i+1] {
			case '/':
				end := strings.IndexByte(src[i:], '\n')
				if end < 0 {
					i = len(src)
				} else {
					i += end
					b.WriteByte('\n')
				}
				continue
			case '*':
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					i = len(src)
				} else {
					i += end + 3
					b.WriteByte(' ')
				}
				continue
			}
		}
		b.WriteByte(src[i])
	}

	return strings.Fields(b.String()), nil
}

// ResolveCycleFile looks for name in the mod directory first and falls back
// to the base directory.
func ResolveCycleFile(modDir, baseDir, name string) (string, error) {
	for _, dir := range []string{modDir, baseDir} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("map cycle %s not found: %w", name, os.ErrNotExist)
}

// ApplyCycle clears every cycleable flag and sets it again for each map
// named in tokens. Matching ignores case.
func (p *Pool) ApplyCycle(tokens []string) (matched, unmatched int) {
	for i := range p.entries {
		p.entries[i].Cycleable = false
	}
	for _, tok := range tokens {
		i, ok := p.index[key(tok)]
		if !ok {
			unmatched++
			p.logger.Debug("map cycle entry not in pool", "map", tok)
			continue
		}
		if !p.entries[i].Cycleable {
			p.entries[i].Cycleable = true
			matched++
		}
	}
	return matched, unmatched
}

// LoadCycle resolves, parses and applies the cycle file. A missing file
// leaves every map non-cycleable.
func (p *Pool) LoadCycle(modDir, baseDir, name string) (matched, unmatched int, err error) {
	path, err := ResolveCycleFile(modDir, baseDir, name)
	if err != nil {
		p.ApplyCycle(nil)
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("map cycle file not found", "name", name)
			return 0, 0, nil
		}
		return 0, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open map cycle: %w", err)
	}
	defer f.Close()

	tokens, err := ParseCycle(f)
	if err != nil {
		return 0, 0, err
	}
	matched, unmatched = p.ApplyCycle(tokens)
	p.logger.Info("map cycle loaded", "path", path, "matched", matched, "unmatched", unmatched)
	return matched, unmatched, nil
}

func (p *Pool) Cycleable() []Handle {
	var out []Handle
	for i := range p.entries {
		if p.entries[i].Cycleable {
			out = append(out, Handle{index: i, gen: p.gen})
		}
	}
	return out
}
