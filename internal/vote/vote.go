package vote

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrVoteInProgress   = errors.New("vote already in progress")
	ErrNotEnoughPlayers = errors.New("not enough players to start a vote")
	ErrAlreadyVoted     = errors.New("you have already voted")
	ErrCannotVote       = errors.New("you cannot vote on this proposal")
)

// CooldownError carries how long a player must wait before calling again.
type CooldownError struct {
	Wait time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before starting another vote", int(e.Wait.Seconds())+1)
}

type ManagerConfig struct {
	Percentage int
	Timeout    time.Duration
	Cooldown   time.Duration
	Voters     Voters
	OnUpdate   func(msg string)
	// OnResult runs once a vote passes, fails or times out.
	OnResult func(v *CallVote, passed bool)
}

// Manager runs at most one call vote at a time. Time is level time; the
// limiter sees it as an offset from a fixed epoch.
type Manager struct {
	cfg      ManagerConfig
	active   *CallVote
	limiters map[int]*rate.Limiter
	epoch    time.Time
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Percentage <= 0 || cfg.Percentage > 100 {
		cfg.Percentage = 50
	}
	return &Manager{
		cfg:      cfg,
		limiters: make(map[int]*rate.Limiter),
		epoch:    time.Unix(0, 0),
	}
}

func (m *Manager) HasActiveVote() bool {
	return m.active != nil
}

func (m *Manager) Active() *CallVote {
	return m.active
}

func (m *Manager) requiredVotes(humans int) int {
	if humans == 0 {
		return 0
	}
	return max((humans*m.cfg.Percentage+99)/100, 1)
}

func (m *Manager) limiter(slot int) *rate.Limiter {
	l, ok := m.limiters[slot]
	if !ok {
		every := rate.Inf
		if m.cfg.Cooldown > 0 {
			every = rate.Every(m.cfg.Cooldown)
		}
		l = rate.NewLimiter(every, 1)
		m.limiters[slot] = l
	}
	return l
}

func (m *Manager) Start(now time.Duration, v *CallVote) error {
	if m.active != nil {
		return ErrVoteInProgress
	}
	humans := m.cfg.Voters.HumanSlots()
	if m.requiredVotes(len(humans)) == 0 {
		return ErrNotEnoughPlayers
	}

	at := m.epoch.Add(now)
	r := m.limiter(v.Instigator).ReserveN(at, 1)
	if wait := r.DelayFrom(at); wait > 0 {
		r.CancelAt(at)
		return &CooldownError{Wait: wait}
	}

	v.start = now
	v.ballots[v.Instigator] = true
	m.active = v

	m.update(fmt.Sprintf("%s called a vote to %s", v.InstigatorName, v.Description()))
	m.check()
	if m.active == v {
		m.update(fmt.Sprintf("%d more votes needed (open the vote menu or type vote yes)", m.remaining()))
	}
	return nil
}

func (m *Manager) Cast(slot int, yes bool) error {
	v := m.active
	if v == nil {
		return ErrNoVote
	}
	if v.Kind == KindKick && slot == v.Target {
		return ErrCannotVote
	}
	if _, voted := v.ballots[slot]; voted {
		return ErrAlreadyVoted
	}
	v.ballots[slot] = yes
	m.check()
	return nil
}

func (m *Manager) remaining() int {
	if m.active == nil {
		return 0
	}
	humans := m.cfg.Voters.HumanSlots()
	yes, _ := m.active.Counts(humans)
	return max(m.requiredVotes(len(humans))-yes, 0)
}

func (m *Manager) check() {
	v := m.active
	if v == nil {
		return
	}
	humans := m.cfg.Voters.HumanSlots()
	required := m.requiredVotes(len(humans))
	yes, no := v.Counts(humans)

	switch {
	case required > 0 && yes >= required:
		m.active = nil
		m.update(fmt.Sprintf("Vote passed: %s", v.Description()))
		if v.OnPass != nil {
			v.OnPass()
		}
		m.result(v, true)
	case required == 0 || no > len(humans)-required:
		m.active = nil
		m.update("Vote failed")
		m.result(v, false)
	}
}

func (m *Manager) Tick(now time.Duration) {
	v := m.active
	if v == nil {
		return
	}
	if now-v.start >= m.cfg.Timeout {
		m.active = nil
		m.update("Vote failed: timed out")
		m.result(v, false)
		return
	}
	m.check()
}

func (m *Manager) Cancel(reason string) {
	if m.active == nil {
		return
	}
	m.active = nil
	m.update(reason)
}

// PlayerDisconnected cancels the vote if its instigator or kick target
// left; otherwise the ballot is dropped.
func (m *Manager) PlayerDisconnected(slot int) {
	delete(m.limiters, slot)
	v := m.active
	if v == nil {
		return
	}
	switch {
	case v.Instigator == slot:
		m.Cancel("Vote cancelled, the caller left")
	case v.Kind == KindKick && v.Target == slot:
		m.Cancel("Vote cancelled, the player left")
	default:
		delete(v.ballots, slot)
	}
}

func (m *Manager) Status(now time.Duration) string {
	v := m.active
	if v == nil {
		return "No active vote"
	}
	humans := m.cfg.Voters.HumanSlots()
	yes, no := v.Counts(humans)
	left := max(v.start+m.cfg.Timeout-now, 0)
	return fmt.Sprintf("Vote: %s - yes %d no %d, %d needed, %ds left",
		v.Description(), yes, no, m.requiredVotes(len(humans)), int(left.Seconds()))
}

func (m *Manager) result(v *CallVote, passed bool) {
	if m.cfg.OnResult != nil {
		m.cfg.OnResult(v, passed)
	}
}

func (m *Manager) update(msg string) {
	if m.cfg.OnUpdate != nil {
		m.cfg.OnUpdate(msg)
	}
}
