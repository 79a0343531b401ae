package vote

import (
	"errors"
	"fmt"
	"time"

	"github.com/siohaza/q2match/internal/mappool"
)

const MaxCandidates = 3

var (
	ErrNoVote        = errors.New("no vote in progress")
	ErrInvalidChoice = errors.New("invalid vote choice")
	ErrNotVoter      = errors.New("only connected players can vote")
)

type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeNoVotes
	OutcomeAutoselected
	OutcomeNoMaps
)

// Voters reports the connected human clients. Bots never vote and never
// count toward a majority.
type Voters interface {
	HumanSlots() []int
}

type SelectorConfig struct {
	MaxClients int
	Duration   time.Duration
	OnBegin    func()
	OnVote     func(slot int)
	// OnFinish receives the chosen map, empty when nothing could be picked.
	OnFinish func(name string, outcome Outcome)
	OnUpdate func(msg string)
}

// Selector runs the end of match map vote over up to three candidates.
type Selector struct {
	pool   *mappool.Pool
	picker *Picker
	voters Voters
	cfg    SelectorConfig

	candidates []mappool.Handle
	votes      []int
	tally      [MaxCandidates]int
	start      time.Duration
	criteria   Criteria
}

func NewSelector(pool *mappool.Pool, picker *Picker, voters Voters, cfg SelectorConfig) *Selector {
	s := &Selector{
		pool:   pool,
		picker: picker,
		voters: voters,
		cfg:    cfg,
		votes:  make([]int, max(cfg.MaxClients, 1)),
	}
	s.reset()
	return s
}

func (s *Selector) reset() {
	for i := range s.votes {
		s.votes[i] = -1
	}
	s.tally = [MaxCandidates]int{}
	s.candidates = nil
	s.start = 0
}

func (s *Selector) Active() bool {
	return s.start != 0
}

// Begin opens a vote. It reports false when a vote is already running or
// there is nothing to vote on.
func (s *Selector) Begin(now time.Duration, c Criteria) bool {
	if s.Active() {
		return false
	}
	s.reset()

	candidates := s.picker.Candidates(s.pool, c, MaxCandidates)
	if len(candidates) == 0 {
		return false
	}
	s.candidates = candidates
	s.criteria = c
	s.start = max(now, 1)

	s.announce("Vote for the next map!")
	if s.cfg.OnBegin != nil {
		s.cfg.OnBegin()
	}
	return true
}

func (s *Selector) NumCandidates() int {
	return len(s.candidates)
}

// Candidate returns the map offered at slot i. A candidate whose pool
// entry went away on reload is reported as absent.
func (s *Selector) Candidate(i int) (*mappool.Entry, bool) {
	if i < 0 || i >= len(s.candidates) {
		return nil, false
	}
	return s.pool.Get(s.candidates[i])
}

func (s *Selector) Tally(i int) int {
	if i < 0 || i >= MaxCandidates {
		return 0
	}
	return s.tally[i]
}

func (s *Selector) VoteOf(slot int) int {
	if slot < 0 || slot >= len(s.votes) {
		return -1
	}
	return s.votes[slot]
}

func (s *Selector) Remaining(now time.Duration) time.Duration {
	if !s.Active() {
		return 0
	}
	return max(s.start+s.cfg.Duration-now, 0)
}

func (s *Selector) CastVote(slot, choice int) error {
	if !s.Active() {
		return ErrNoVote
	}
	if choice < 0 || choice >= MaxCandidates {
		return ErrInvalidChoice
	}
	if _, ok := s.Candidate(choice); !ok {
		return ErrInvalidChoice
	}
	if !s.isVoter(slot) {
		return ErrNotVoter
	}

	old := s.votes[slot]
	if old == choice {
		return nil
	}
	if old >= 0 {
		s.tally[old] = max(s.tally[old]-1, 0)
	}
	s.votes[slot] = choice
	s.tally[choice]++
	if s.cfg.OnVote != nil {
		s.cfg.OnVote(slot)
	}

	s.recount()
	if s.majority() {
		s.Finalize()
	}
	return nil
}

// ClearVote drops a client's vote, typically on disconnect.
func (s *Selector) ClearVote(slot int) {
	if slot < 0 || slot >= len(s.votes) {
		return
	}
	old := s.votes[slot]
	if old < 0 {
		return
	}
	s.tally[old] = max(s.tally[old]-1, 0)
	s.votes[slot] = -1
}

func (s *Selector) isVoter(slot int) bool {
	if slot < 0 || slot >= len(s.votes) {
		return false
	}
	for _, h := range s.voters.HumanSlots() {
		if h == slot {
			return true
		}
	}
	return false
}

// recount rebuilds the tallies from votes of connected humans only.
func (s *Selector) recount() {
	s.tally = [MaxCandidates]int{}
	for _, slot := range s.voters.HumanSlots() {
		if slot < 0 || slot >= len(s.votes) {
			continue
		}
		if v := s.votes[slot]; v >= 0 && v < len(s.candidates) {
			s.tally[v]++
		}
	}
}

func (s *Selector) majority() bool {
	humans := len(s.voters.HumanSlots())
	for i := range s.candidates {
		if _, ok := s.Candidate(i); ok && s.tally[i]*2 > humans {
			return true
		}
	}
	return false
}

func (s *Selector) Tick(now time.Duration) {
	if !s.Active() {
		return
	}
	s.recount()

	live := 0
	for i := range s.candidates {
		if _, ok := s.Candidate(i); ok {
			live++
		}
	}
	if live == 0 || s.majority() || now-s.start >= s.cfg.Duration {
		s.Finalize()
	}
}

// Finalize closes the vote and settles the next map.
func (s *Selector) Finalize() {
	if !s.Active() {
		return
	}
	s.recount()

	best := 0
	for i := range s.candidates {
		if _, ok := s.Candidate(i); ok {
			best = max(best, s.tally[i])
		}
	}

	var pool []int
	for i := range s.candidates {
		if _, ok := s.Candidate(i); !ok {
			continue
		}
		if best == 0 || s.tally[i] == best {
			pool = append(pool, i)
		}
	}

	var (
		name    string
		outcome Outcome
	)
	switch {
	case len(pool) > 0:
		e, _ := s.Candidate(pool[s.picker.Intn(len(pool))])
		name = e.Filename
		if best > 0 {
			outcome = OutcomePassed
			s.announce(fmt.Sprintf("Vote passed: %s (%d votes)", e.DisplayName(), best))
		} else {
			outcome = OutcomeNoVotes
			s.announce(fmt.Sprintf("No votes cast, randomly picked %s", e.DisplayName()))
		}
	default:
		if h, ok := s.picker.AutoSelect(s.pool, s.criteria); ok {
			e, _ := s.pool.Get(h)
			name = e.Filename
			outcome = OutcomeAutoselected
			s.announce(fmt.Sprintf("Vote failed, autoselected %s", e.DisplayName()))
		} else {
			outcome = OutcomeNoMaps
			s.announce("Vote failed, no maps available")
		}
	}

	s.reset()
	if s.cfg.OnFinish != nil {
		s.cfg.OnFinish(name, outcome)
	}
}

func (s *Selector) announce(msg string) {
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(msg)
	}
}
