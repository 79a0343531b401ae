package vote

import (
	"math/rand"
	"strings"

	"github.com/samber/lo"

	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/mappool"
)

// Picker is the seeded random source behind autoselect and tie breaks.
// The same seed always replays the same sequence.
type Picker struct {
	rng *rand.Rand
}

func NewPicker(seed int64) *Picker {
	return &Picker{rng: rand.New(rand.NewSource(seed))}
}

func (p *Picker) Seed(seed int64) {
	p.rng = rand.New(rand.NewSource(seed))
}

func (p *Picker) Intn(n int) int {
	if n <= 0 {
		return -1
	}
	return p.rng.Intn(n)
}

// PickWeighted returns an index chosen proportionally to weights, or -1
// for an empty slice. Non-positive weights count as 1.
func (p *Picker) PickWeighted(weights []int) int {
	if len(weights) == 0 {
		return -1
	}
	total := 0
	for _, w := range weights {
		total += max(w, 1)
	}
	r := p.rng.Intn(total)
	for i, w := range weights {
		r -= max(w, 1)
		if r < 0 {
			return i
		}
	}
	return len(weights) - 1
}

type Criteria struct {
	GameType gametype.GameType
	Players  int
	// current and recently played maps
	Exclude []string
}

// Eligible lists cycleable maps that fit the gametype and player count.
// The exclusion list is ignored when honouring it would leave nothing.
func Eligible(pool *mappool.Pool, c Criteria) []mappool.Handle {
	fits := lo.Filter(pool.Cycleable(), func(h mappool.Handle, _ int) bool {
		e, ok := pool.Get(h)
		return ok && e.Supports(c.GameType) && e.Accepts(c.Players)
	})

	fresh := lo.Filter(fits, func(h mappool.Handle, _ int) bool {
		e, _ := pool.Get(h)
		return !lo.ContainsBy(c.Exclude, func(name string) bool {
			return strings.EqualFold(name, e.Filename)
		})
	})
	if len(fresh) == 0 {
		return fits
	}
	return fresh
}

func (p *Picker) AutoSelect(pool *mappool.Pool, c Criteria) (mappool.Handle, bool) {
	picked := p.Candidates(pool, c, 1)
	if len(picked) == 0 {
		return mappool.Handle{}, false
	}
	return picked[0], true
}

// Candidates samples up to n distinct maps without replacement, weighted
// by popularity.
func (p *Picker) Candidates(pool *mappool.Pool, c Criteria, n int) []mappool.Handle {
	remaining := Eligible(pool, c)
	var picked []mappool.Handle
	for len(picked) < n && len(remaining) > 0 {
		weights := lo.Map(remaining, func(h mappool.Handle, _ int) int {
			e, _ := pool.Get(h)
			return e.Popularity
		})
		i := p.PickWeighted(weights)
		picked = append(picked, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return picked
}
