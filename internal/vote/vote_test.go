package vote

import (
	"errors"
	"testing"
	"time"

	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/mappool"
)

type mockVoters struct {
	slots []int
}

func (v *mockVoters) HumanSlots() []int { return v.slots }

func (v *mockVoters) drop(slot int) {
	kept := v.slots[:0]
	for _, s := range v.slots {
		if s != slot {
			kept = append(kept, s)
		}
	}
	v.slots = kept
}

func testPool(t *testing.T, names ...string) *mappool.Pool {
	t.Helper()
	p := mappool.NewPool(nil)
	var entries []mappool.Entry
	for i, n := range names {
		entries = append(entries, mappool.Entry{Filename: n, Popularity: i + 1})
	}
	p.Replace(entries)
	p.ApplyCycle(names)
	return p
}

func TestPickWeightedDistribution(t *testing.T) {
	draw := func() [3]int {
		p := NewPicker(42)
		var counts [3]int
		for i := 0; i < 10000; i++ {
			counts[p.PickWeighted([]int{2, 1, 1})]++
		}
		return counts
	}

	first := draw()
	if first[0] <= first[1] || first[0] <= first[2] {
		t.Fatalf("counts = %v, index 0 should dominate", first)
	}
	if again := draw(); again != first {
		t.Fatalf("same seed gave %v then %v", first, again)
	}
}

func TestPickWeightedEdges(t *testing.T) {
	p := NewPicker(1)
	if got := p.PickWeighted(nil); got != -1 {
		t.Fatalf("empty = %d, want -1", got)
	}
	for i := 0; i < 100; i++ {
		if got := p.PickWeighted([]int{0, -5}); got < 0 || got > 1 {
			t.Fatalf("got %d", got)
		}
	}
}

func TestAutoSelectFilters(t *testing.T) {
	p := mappool.NewPool(nil)
	p.Replace([]mappool.Entry{
		{Filename: "small", MaxPlayers: 4, Popularity: 1},
		{Filename: "ctfonly", GameTypes: gametype.MaskOf(gametype.CTF), Popularity: 1},
		{Filename: "offcycle", Popularity: 100},
		{Filename: "big", MinPlayers: 6, Popularity: 1},
	})
	p.ApplyCycle([]string{"small", "ctfonly", "big"})

	picker := NewPicker(7)
	for i := 0; i < 50; i++ {
		h, ok := picker.AutoSelect(p, Criteria{GameType: gametype.FFA, Players: 2})
		if !ok {
			t.Fatalf("nothing selected")
		}
		e, _ := p.Get(h)
		if e.Filename != "small" {
			t.Fatalf("selected %s", e.Filename)
		}
	}

	if _, ok := picker.AutoSelect(p, Criteria{GameType: gametype.FFA, Players: 5}); ok {
		t.Fatalf("no map fits five players in ffa")
	}
}

func TestAutoSelectDropsExclusionWhenEmpty(t *testing.T) {
	p := testPool(t, "only")
	h, ok := NewPicker(1).AutoSelect(p, Criteria{GameType: gametype.FFA, Exclude: []string{"ONLY"}})
	if !ok {
		t.Fatalf("exclusion should be dropped when it empties the set")
	}
	if e, _ := p.Get(h); e.Filename != "only" {
		t.Fatalf("got %s", e.Filename)
	}

	p = testPool(t, "a", "b")
	for i := 0; i < 20; i++ {
		h, _ := NewPicker(int64(i)).AutoSelect(p, Criteria{GameType: gametype.FFA, Exclude: []string{"a"}})
		if e, _ := p.Get(h); e.Filename != "b" {
			t.Fatalf("excluded map picked")
		}
	}
}

func TestCandidatesDistinct(t *testing.T) {
	p := testPool(t, "a", "b", "c", "d", "e")
	got := NewPicker(3).Candidates(p, Criteria{GameType: gametype.FFA}, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	seen := map[mappool.Handle]bool{}
	for _, h := range got {
		if seen[h] {
			t.Fatalf("duplicate candidate")
		}
		seen[h] = true
	}
}

type finish struct {
	name    string
	outcome Outcome
}

func newSelector(t *testing.T, pool *mappool.Pool, voters *mockVoters) (*Selector, *[]finish) {
	t.Helper()
	var done []finish
	s := NewSelector(pool, NewPicker(9), voters, SelectorConfig{
		MaxClients: 8,
		Duration:   30 * time.Second,
		OnFinish: func(name string, outcome Outcome) {
			done = append(done, finish{name, outcome})
		},
	})
	return s, &done
}

func TestSelectorSingleVoterMajority(t *testing.T) {
	voters := &mockVoters{slots: []int{0}}
	s, done := newSelector(t, testPool(t, "a", "b", "c"), voters)
	if !s.Begin(time.Second, Criteria{GameType: gametype.FFA}) {
		t.Fatalf("begin failed")
	}
	want, _ := s.Candidate(1)
	name := want.Filename

	if err := s.CastVote(0, 1); err != nil {
		t.Fatalf("cast: %v", err)
	}
	if s.Active() {
		t.Fatalf("1 > 1/2 should finalize immediately")
	}
	if len(*done) != 1 || (*done)[0].name != name || (*done)[0].outcome != OutcomePassed {
		t.Fatalf("finish = %+v, want %s passed", *done, name)
	}
}

func TestSelectorClearVote(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2}}
	s, _ := newSelector(t, testPool(t, "a", "b", "c"), voters)
	s.Begin(time.Second, Criteria{GameType: gametype.FFA})

	if err := s.CastVote(2, 0); err != nil {
		t.Fatalf("cast: %v", err)
	}
	if s.Tally(0) != 1 {
		t.Fatalf("tally = %d", s.Tally(0))
	}
	voters.drop(2)
	s.ClearVote(2)
	if s.Tally(0) != 0 {
		t.Fatalf("stale vote still counted: %d", s.Tally(0))
	}
	if s.VoteOf(2) != -1 {
		t.Fatalf("vote slot not cleared")
	}
}

func TestSelectorStaleVoteIgnoredOnRecount(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2}}
	s, done := newSelector(t, testPool(t, "a", "b", "c"), voters)
	s.Begin(time.Second, Criteria{GameType: gametype.FFA})

	_ = s.CastVote(0, 0)
	voters.drop(0)
	// slot 0 left without ClearVote; 1 of 2 remaining is not a majority
	_ = s.CastVote(1, 0)
	if !s.Active() || len(*done) != 0 {
		t.Fatalf("departed voter's ballot counted toward majority")
	}
	if s.Tally(0) != 1 {
		t.Fatalf("tally = %d, want 1", s.Tally(0))
	}
}

func TestSelectorChangeVote(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2, 3}}
	s, _ := newSelector(t, testPool(t, "a", "b", "c"), voters)
	s.Begin(time.Second, Criteria{GameType: gametype.FFA})

	_ = s.CastVote(0, 0)
	_ = s.CastVote(0, 0)
	if s.Tally(0) != 1 {
		t.Fatalf("repeat vote counted twice")
	}
	_ = s.CastVote(0, 2)
	if s.Tally(0) != 0 || s.Tally(2) != 1 {
		t.Fatalf("tallies = %d %d", s.Tally(0), s.Tally(2))
	}
}

func TestSelectorRejects(t *testing.T) {
	voters := &mockVoters{slots: []int{0}}
	s, _ := newSelector(t, testPool(t, "a", "b"), voters)

	if err := s.CastVote(0, 0); !errors.Is(err, ErrNoVote) {
		t.Fatalf("err = %v, want ErrNoVote", err)
	}
	s.Begin(time.Second, Criteria{GameType: gametype.FFA})
	if s.Begin(2*time.Second, Criteria{}) {
		t.Fatalf("second begin should be a no-op")
	}
	for _, choice := range []int{-1, 2, 3} {
		if err := s.CastVote(0, choice); !errors.Is(err, ErrInvalidChoice) {
			t.Fatalf("choice %d: err = %v", choice, err)
		}
	}
	if err := s.CastVote(5, 0); !errors.Is(err, ErrNotVoter) {
		t.Fatalf("err = %v, want ErrNotVoter", err)
	}
}

func TestSelectorTimeoutNoVotes(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1}}
	s, done := newSelector(t, testPool(t, "a", "b", "c"), voters)
	s.Begin(time.Second, Criteria{GameType: gametype.FFA})

	s.Tick(20 * time.Second)
	if !s.Active() {
		t.Fatalf("expired early")
	}
	s.Tick(31 * time.Second)
	if s.Active() || len(*done) != 1 || (*done)[0].outcome != OutcomeNoVotes || (*done)[0].name == "" {
		t.Fatalf("finish = %+v", *done)
	}
}

func TestSelectorStaleCandidatesAutoselect(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1}}
	pool := testPool(t, "a", "b", "c")
	s, done := newSelector(t, pool, voters)
	s.Begin(time.Second, Criteria{GameType: gametype.FFA})
	_ = s.CastVote(0, 0)

	pool.Replace(pool.Entries())
	pool.ApplyCycle([]string{"a", "b", "c"})
	if _, ok := s.Candidate(0); ok {
		t.Fatalf("stale candidate dereferenced")
	}
	s.Tick(2 * time.Second)
	if len(*done) != 1 || (*done)[0].outcome != OutcomeAutoselected || (*done)[0].name == "" {
		t.Fatalf("finish = %+v", *done)
	}
}

func TestSelectorNoCandidates(t *testing.T) {
	voters := &mockVoters{slots: []int{0}}
	s, _ := newSelector(t, mappool.NewPool(nil), voters)
	if s.Begin(time.Second, Criteria{}) || s.Active() {
		t.Fatalf("vote opened with an empty pool")
	}
}

func newManager(voters *mockVoters) (*Manager, *[]string) {
	var msgs []string
	m := NewManager(ManagerConfig{
		Percentage: 51,
		Timeout:    30 * time.Second,
		Cooldown:   time.Minute,
		Voters:     voters,
		OnUpdate:   func(msg string) { msgs = append(msgs, msg) },
	})
	return m, &msgs
}

func TestCallVotePasses(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2}}
	m, _ := newManager(voters)
	passed := 0
	if err := m.Start(0, NewCallVote(KindRestart, 0, "alice", func() { passed++ })); err != nil {
		t.Fatalf("start: %v", err)
	}
	if passed != 0 {
		t.Fatalf("one of three must not pass at 51%%")
	}
	if err := m.Cast(0, true); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("instigator votes yes automatically, err = %v", err)
	}
	if err := m.Cast(1, true); err != nil {
		t.Fatalf("cast: %v", err)
	}
	if passed != 1 || m.HasActiveVote() {
		t.Fatalf("passed = %d active = %v", passed, m.HasActiveVote())
	}
}

func TestCallVoteFailsOnNoVotes(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2}}
	m, _ := newManager(voters)
	_ = m.Start(0, NewCallVote(KindNextMap, 0, "alice", func() { t.Fatalf("must not pass") }))
	_ = m.Cast(1, false)
	_ = m.Cast(2, false)
	if m.HasActiveVote() {
		t.Fatalf("vote should have failed")
	}
}

func TestCallVoteExpires(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2}}
	m, msgs := newManager(voters)
	_ = m.Start(0, NewCallVote(KindTimeout, 0, "alice", nil))
	m.Tick(29 * time.Second)
	if !m.HasActiveVote() {
		t.Fatalf("expired early")
	}
	m.Tick(30 * time.Second)
	if m.HasActiveVote() {
		t.Fatalf("vote did not expire")
	}
	if last := (*msgs)[len(*msgs)-1]; last != "Vote failed: timed out" {
		t.Fatalf("last message %q", last)
	}
}

func TestCallVoteCancelledOnInstigatorLeave(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2}}
	m, _ := newManager(voters)
	_ = m.Start(0, NewCallVote(KindRestart, 1, "bob", func() { t.Fatalf("must not pass") }))
	voters.drop(1)
	m.PlayerDisconnected(1)
	if m.HasActiveVote() {
		t.Fatalf("vote not cancelled")
	}
}

func TestCallVoteKickTarget(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2, 3}}
	m, _ := newManager(voters)
	v := NewCallVote(KindKick, 0, "alice", nil)
	v.Target, v.TargetName = 3, "mallory"
	_ = m.Start(0, v)
	if err := m.Cast(3, false); !errors.Is(err, ErrCannotVote) {
		t.Fatalf("err = %v, want ErrCannotVote", err)
	}
	voters.drop(3)
	m.PlayerDisconnected(3)
	if m.HasActiveVote() {
		t.Fatalf("kick vote should end when the target leaves")
	}
}

func TestCallVoteRateLimited(t *testing.T) {
	voters := &mockVoters{slots: []int{0, 1, 2}}
	m, _ := newManager(voters)
	_ = m.Start(0, NewCallVote(KindRestart, 0, "alice", nil))
	m.Cancel("cancelled")

	err := m.Start(10*time.Second, NewCallVote(KindRestart, 0, "alice", nil))
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("err = %v, want cooldown", err)
	}
	if cooldown.Wait <= 0 || cooldown.Wait > time.Minute {
		t.Fatalf("wait = %v", cooldown.Wait)
	}

	if err := m.Start(10*time.Second, NewCallVote(KindRestart, 1, "bob", nil)); err != nil {
		t.Fatalf("other players are not limited: %v", err)
	}
	m.Cancel("cancelled")
	if err := m.Start(61*time.Second, NewCallVote(KindRestart, 0, "alice", nil)); err != nil {
		t.Fatalf("cooldown should have elapsed: %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("ParseKind(%q) = %v %v", k, got, ok)
		}
	}
	if _, ok := ParseKind("explode"); ok {
		t.Fatalf("unknown kind accepted")
	}
}
