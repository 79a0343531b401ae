package mappool

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/cases"

	"github.com/siohaza/q2match/internal/gametype"
)

var ErrUnknownMap = errors.New("map not in pool")

type Entry struct {
	Filename   string
	LongName   string
	Authors    []string
	GameTypes  gametype.Mask
	MinPlayers int
	MaxPlayers int
	Popularity int
	Cycleable  bool
}

func (e *Entry) Supports(gt gametype.GameType) bool {
	return e.GameTypes.Allows(gt)
}

// Accepts reports whether the map suits a player count. Zero bounds are
// unlimited.
func (e *Entry) Accepts(players int) bool {
	if e.MinPlayers > 0 && players < e.MinPlayers {
		return false
	}
	if e.MaxPlayers > 0 && players > e.MaxPlayers {
		return false
	}
	return true
}

func (e *Entry) DisplayName() string {
	if e.LongName != "" {
		return e.LongName
	}
	return e.Filename
}

// Handle refers to a pool entry. It goes stale when the pool is reloaded
// and is never dereferenced after that.
type Handle struct {
	index int
	gen   uint64
}

func (h Handle) Valid() bool {
	return h.gen != 0
}

type Pool struct {
	entries []Entry
	index   map[string]int
	gen     uint64
	queue   *Queue
	logger  *slog.Logger
}

func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		index:  make(map[string]int),
		gen:    1,
		queue:  NewQueue(0),
		logger: logger,
	}
}

func key(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func (p *Pool) Generation() uint64 {
	return p.gen
}

func (p *Pool) Len() int {
	return len(p.entries)
}

func (p *Pool) Queue() *Queue {
	return p.queue
}

func (p *Pool) Get(h Handle) (*Entry, bool) {
	if h.gen != p.gen || h.index < 0 || h.index >= len(p.entries) {
		return nil, false
	}
	return &p.entries[h.index], true
}

func (p *Pool) Find(name string) (Handle, bool) {
	i, ok := p.index[key(name)]
	if !ok {
		return Handle{}, false
	}
	return Handle{index: i, gen: p.gen}, true
}

func (p *Pool) Lookup(name string) (*Entry, bool) {
	h, ok := p.Find(name)
	if !ok {
		return nil, false
	}
	return p.Get(h)
}

func (p *Pool) Exists(name string) bool {
	_, ok := p.index[key(name)]
	return ok
}

func (p *Pool) Handles() []Handle {
	handles := make([]Handle, len(p.entries))
	for i := range p.entries {
		handles[i] = Handle{index: i, gen: p.gen}
	}
	return handles
}

func (p *Pool) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Replace swaps in a new set of maps. Every outstanding handle goes stale
// and queued requests for maps that disappeared are pruned and returned.
func (p *Pool) Replace(entries []Entry) []Request {
	p.entries = make([]Entry, 0, len(entries))
	p.index = make(map[string]int, len(entries))
	for _, e := range entries {
		k := key(e.Filename)
		if k == "" {
			continue
		}
		if _, dup := p.index[k]; dup {
			p.logger.Warn("duplicate map in pool", "map", e.Filename)
			continue
		}
		p.index[k] = len(p.entries)
		p.entries = append(p.entries, e)
	}
	p.gen++
	return p.pruneQueue()
}

func (p *Pool) Remove(name string) ([]Request, bool) {
	i, ok := p.index[key(name)]
	if !ok {
		return nil, false
	}
	entries := make([]Entry, 0, len(p.entries)-1)
	entries = append(entries, p.entries[:i]...)
	entries = append(entries, p.entries[i+1:]...)
	return p.Replace(entries), true
}

func (p *Pool) pruneQueue() []Request {
	pruned := p.queue.prune(p.Exists)
	for _, r := range pruned {
		p.logger.Info("pruned queued map", "map", r.Map, "player", r.Name)
	}
	return pruned
}

// Enqueue validates a play request against the pool before queueing it.
func (p *Pool) Enqueue(r Request) error {
	e, ok := p.Lookup(r.Map)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMap, r.Map)
	}
	r.Map = e.Filename
	return p.queue.Push(r)
}

// Pop returns the next queued map that still exists in the pool.
func (p *Pool) Pop() (Request, bool) {
	for {
		r, ok := p.queue.Pop()
		if !ok {
			return Request{}, false
		}
		if p.Exists(r.Map) {
			return r, true
		}
	}
}

type dbFile struct {
	Maps []json.RawMessage `json:"maps"`
}

type dbEntry struct {
	BSP        string   `json:"bsp"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	GameTypes  []string `json:"gametypes"`
	MinPlayers int      `json:"min_players"`
	MaxPlayers int      `json:"max_players"`
	Popularity int      `json:"popularity"`
}

// ParseDatabase decodes the map database. Malformed entries are skipped
// with a warning; only an unreadable document is an error.
func ParseDatabase(data []byte, logger *slog.Logger) ([]Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var db dbFile
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("failed to parse map database: %w", err)
	}

	entries := make([]Entry, 0, len(db.Maps))
	for i, raw := range db.Maps {
		var de dbEntry
		if err := json.Unmarshal(raw, &de); err != nil {
			logger.Warn("skipping malformed map entry", "index", i, "error", err)
			continue
		}
		de.BSP = strings.TrimSpace(de.BSP)
		if de.BSP == "" {
			logger.Warn("skipping map entry without bsp", "index", i)
			continue
		}
		if de.MaxPlayers > 0 && de.MinPlayers > de.MaxPlayers {
			logger.Warn("skipping map entry with min_players above max_players", "map", de.BSP)
			continue
		}

		var types []gametype.GameType
		for _, name := range de.GameTypes {
			gt, ok := gametype.ParseName(name)
			if !ok {
				logger.Warn("unknown gametype in map entry", "map", de.BSP, "gametype", name)
				continue
			}
			types = append(types, gt)
		}

		entries = append(entries, Entry{
			Filename:   de.BSP,
			LongName:   de.Title,
			Authors:    de.Authors,
			GameTypes:  gametype.MaskOf(types...),
			MinPlayers: max(de.MinPlayers, 0),
			MaxPlayers: max(de.MaxPlayers, 0),
			Popularity: de.Popularity,
		})
	}
	return entries, nil
}

// Load reads the map database at path and replaces the pool contents.
func (p *Pool) Load(path string) ([]Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read map database: %w", err)
	}
	entries, err := ParseDatabase(data, p.logger)
	if err != nil {
		return nil, err
	}
	pruned := p.Replace(entries)
	p.logger.Info("map database loaded", "path", path, "maps", len(p.entries))
	return pruned, nil
}
