package match

import "time"

// GraceScope debounces one end condition for the duration of a frame.
// Unless MarkConditionActive is called before Close, Close resets the
// timer to zero so the next violation starts a full window.
type GraceScope struct {
	timer  *time.Duration
	active bool
}

func NewGraceScope(timer *time.Duration) *GraceScope {
	return &GraceScope{timer: timer}
}

func (g *GraceScope) MarkConditionActive() {
	g.active = true
}

func (g *GraceScope) Close() {
	if !g.active {
		*g.timer = 0
	}
}

// holds reports whether cond has persisted until its grace deadline. The
// first frame a condition is seen only arms the deadline, so an exit is
// never honoured on the frame it appears.
func holds(timer *time.Duration, now, grace time.Duration, cond bool) bool {
	scope := NewGraceScope(timer)
	defer scope.Close()

	if !cond {
		return false
	}
	scope.MarkConditionActive()

	if *timer == 0 {
		// zero means unset, so never store a zero deadline
		*timer = max(now+grace, 1)
		return false
	}
	return now >= *timer
}
