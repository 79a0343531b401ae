package heatmap

import (
	"math"
	"time"
)

type Config struct {
	CellSize float64
	// DecayRate is heat lost per second.
	DecayRate float64
	MinHeat   float64
}

func DefaultConfig() Config {
	return Config{CellSize: 128, DecayRate: 2, MinHeat: 1}
}

type key struct {
	x, y int
}

type cell struct {
	heat float64
	at   time.Duration
}

// Map is a grid-hashed heat field. Heat decays linearly from the time a
// cell was last touched; times are level time.
type Map struct {
	cfg   Config
	cells map[key]cell
}

func New(cfg Config) *Map {
	def := DefaultConfig()
	if cfg.CellSize <= 0 {
		cfg.CellSize = def.CellSize
	}
	if cfg.DecayRate < 0 {
		cfg.DecayRate = 0
	}
	if cfg.MinHeat < 0 {
		cfg.MinHeat = 0
	}
	return &Map{cfg: cfg, cells: make(map[key]cell)}
}

func (m *Map) Config() Config {
	return m.cfg
}

func (m *Map) keyOf(x, y float64) key {
	return key{
		x: int(math.Floor(x / m.cfg.CellSize)),
		y: int(math.Floor(y / m.cfg.CellSize)),
	}
}

func (m *Map) value(c cell, now time.Duration) float64 {
	elapsed := max(now-c.at, 0)
	return max(c.heat-m.cfg.DecayRate*elapsed.Seconds(), 0)
}

// Add deposits heat at a world position. Non-positive amounts are ignored.
func (m *Map) Add(x, y, amount float64, now time.Duration) {
	if amount <= 0 || math.IsNaN(amount) {
		return
	}
	k := m.keyOf(x, y)
	c := m.cells[k]
	m.cells[k] = cell{heat: m.value(c, now) + amount, at: now}
}

func (m *Map) Heat(x, y float64, now time.Duration) float64 {
	c, ok := m.cells[m.keyOf(x, y)]
	if !ok {
		return 0
	}
	return m.value(c, now)
}

// Around sums the heat of every cell whose centre lies within radius of
// (x, y), always including the cell containing the point.
func (m *Map) Around(x, y, radius float64, now time.Duration) float64 {
	if radius < 0 {
		radius = 0
	}
	size := m.cfg.CellSize
	centre := m.keyOf(x, y)
	lo := m.keyOf(x-radius, y-radius)
	hi := m.keyOf(x+radius, y+radius)

	total := 0.0
	for cx := lo.x; cx <= hi.x; cx++ {
		for cy := lo.y; cy <= hi.y; cy++ {
			k := key{cx, cy}
			c, ok := m.cells[k]
			if !ok {
				continue
			}
			if k != centre {
				dx := (float64(cx)+0.5)*size - x
				dy := (float64(cy)+0.5)*size - y
				if dx*dx+dy*dy > radius*radius {
					continue
				}
			}
			total += m.value(c, now)
		}
	}
	return total
}

type Point struct {
	X, Y float64
}

// Coolest returns the index of the point with the least heat around it, or
// -1 for no points. Ties keep the earliest point.
func (m *Map) Coolest(points []Point, radius float64, now time.Duration) int {
	best := -1
	bestHeat := math.Inf(1)
	for i, p := range points {
		h := m.Around(p.X, p.Y, radius, now)
		if h < bestHeat {
			best = i
			bestHeat = h
		}
	}
	return best
}

// Prune drops cells that decayed below the minimum heat and returns how
// many were removed.
func (m *Map) Prune(now time.Duration) int {
	removed := 0
	for k, c := range m.cells {
		if m.value(c, now) < m.cfg.MinHeat {
			delete(m.cells, k)
			removed++
		}
	}
	return removed
}

func (m *Map) Clear() {
	clear(m.cells)
}

func (m *Map) Len() int {
	return len(m.cells)
}
