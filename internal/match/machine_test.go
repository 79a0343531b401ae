package match

import (
	"errors"
	"testing"
	"time"

	"github.com/siohaza/q2match/internal/gamemode"
	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/player"
)

type mockHost struct {
	broadcasts []string
	resets     int
	rounds     []int
	ended      []gamemode.Result
	queue      []string
	voteOpens  bool
	votes      int
	auto       string
	autoCalls  int
	changed    []string
}

func (h *mockHost) Broadcast(msg string) { h.broadcasts = append(h.broadcasts, msg) }
func (h *mockHost) ResetMatch() { h.resets++ }
func (h *mockHost) StartRound(round int) { h.rounds = append(h.rounds, round) }

func (h *mockHost) RoundEnded(round int, res gamemode.Result) {
	h.ended = append(h.ended, res)
}

func (h *mockHost) PopQueuedMap() (string, bool) {
	if len(h.queue) == 0 {
		return "", false
	}
	name := h.queue[0]
	h.queue = h.queue[1:]
	return name, true
}

func (h *mockHost) BeginMapVote() bool {
	h.votes++
	return h.voteOpens
}

func (h *mockHost) AutoSelectMap() (string, bool) {
	h.autoCalls++
	return h.auto, h.auto != ""
}

func (h *mockHost) ChangeMap(name string) { h.changed = append(h.changed, name) }
func (h *mockHost) StateChanged(from, to State) {}

const frame = 100 * time.Millisecond

func newMachine(t *testing.T, gt gametype.GameType, cfg Config, host *mockHost) *Machine {
	t.Helper()
	info := gametype.GetInfo(gt)
	return New(cfg, info, Limits{
		ScoreLimit: info.ScoreLimit,
		TimeLimit:  info.TimeLimit,
		RoundLimit: info.RoundLimit,
	}, nil, host, nil)
}

func ffaSnap(scores ...int) Snapshot {
	snap := Snapshot{PlayingHumans: len(scores), ReadyHumans: len(scores)}
	for i, s := range scores {
		snap.Players = append(snap.Players, gamemode.Standing{Slot: i, Team: player.TeamFree, Score: s, Alive: true})
	}
	return snap
}

func TestGraceScopeResetsWhenUnmarked(t *testing.T) {
	timer := 1000 * time.Millisecond
	func() {
		scope := NewGraceScope(&timer)
		defer scope.Close()
	}()
	if timer != 0 {
		t.Fatalf("timer = %v, want 0", timer)
	}
}

func TestGraceScopeKeepsTimerWhenMarked(t *testing.T) {
	var timer time.Duration
	func() {
		scope := NewGraceScope(&timer)
		defer scope.Close()
		scope.MarkConditionActive()
		timer = 1500 * time.Millisecond
	}()
	if timer != 1500*time.Millisecond {
		t.Fatalf("timer = %v, want 1.5s", timer)
	}
}

func TestHoldsNeedsPersistence(t *testing.T) {
	var timer time.Duration
	grace := 300 * time.Millisecond

	if holds(&timer, 0, grace, true) {
		t.Fatalf("condition must not hold on the frame it appears")
	}
	if holds(&timer, 100*time.Millisecond, grace, true) {
		t.Fatalf("condition must not hold before the deadline")
	}
	// a single clear frame restarts the window
	if holds(&timer, 200*time.Millisecond, grace, false) || timer != 0 {
		t.Fatalf("timer not reset, got %v", timer)
	}
	holds(&timer, 300*time.Millisecond, grace, true)
	if holds(&timer, 500*time.Millisecond, grace, true) {
		t.Fatalf("condition held before a fresh full window")
	}
	if !holds(&timer, 600*time.Millisecond, grace, true) {
		t.Fatalf("condition should hold after the window")
	}
}

func TestWarmupCountdownStart(t *testing.T) {
	host := &mockHost{}
	m := newMachine(t, gametype.FFA, Config{Warmup: true, MinPlayers: 2, CountdownTime: time.Second}, host)

	m.Tick(0, Snapshot{PlayingHumans: 1, ReadyHumans: 1})
	if m.State() != StateWarmup {
		t.Fatalf("state = %v, want warmup with one player", m.State())
	}

	m.Tick(frame, Snapshot{PlayingHumans: 2, ReadyHumans: 2})
	if m.State() != StateCountdown {
		t.Fatalf("state = %v, want countdown", m.State())
	}

	// losing a ready player aborts
	m.Tick(2*frame, Snapshot{PlayingHumans: 2, ReadyHumans: 0})
	if m.State() != StateWarmup {
		t.Fatalf("state = %v, want warmup after abort", m.State())
	}

	m.Tick(3*frame, Snapshot{PlayingHumans: 2, ReadyHumans: 2})
	m.Tick(3*frame+time.Second, Snapshot{PlayingHumans: 2, ReadyHumans: 2})
	if m.State() != StateInProgress {
		t.Fatalf("state = %v, want in progress", m.State())
	}
	if host.resets != 1 {
		t.Fatalf("resets = %d, want 1", host.resets)
	}
}

func TestReadyPercentile(t *testing.T) {
	host := &mockHost{}
	m := newMachine(t, gametype.Duel, Config{Warmup: true, MinPlayers: 2, CountdownTime: time.Second}, host)
	m.Tick(0, Snapshot{PlayingHumans: 2, ReadyHumans: 1})
	if m.State() != StateWarmup {
		t.Fatalf("duel needs everyone ready, state = %v", m.State())
	}
}

func TestWarmupDisabled(t *testing.T) {
	host := &mockHost{}
	m := newMachine(t, gametype.FFA, Config{}, host)
	m.Tick(0, Snapshot{})
	if m.State() != StateInProgress {
		t.Fatalf("state = %v, want in progress", m.State())
	}
}

func TestScoreLimitNeedsGrace(t *testing.T) {
	host := &mockHost{auto: "q2dm1"}
	m := newMachine(t, gametype.FFA, Config{GraceTime: 200 * time.Millisecond}, host)
	m.Tick(0, ffaSnap(0, 0))

	// one frame flicker at the limit
	m.Tick(frame, ffaSnap(40, 0))
	m.Tick(2*frame, ffaSnap(39, 0))
	m.Tick(3*frame, ffaSnap(39, 0))
	if m.State() != StateInProgress {
		t.Fatalf("flicker ended the match")
	}

	m.Tick(4*frame, ffaSnap(40, 0))
	m.Tick(5*frame, ffaSnap(40, 0))
	if m.State() != StateInProgress {
		t.Fatalf("ended before the grace window elapsed")
	}
	m.Tick(6*frame, ffaSnap(40, 0))
	if m.State() != StateIntermission {
		t.Fatalf("state = %v, want intermission", m.State())
	}
	if res := m.Result(); res.Exit != gamemode.ExitScoreLimit || res.WinnerSlot != 0 {
		t.Fatalf("result = %+v", res)
	}
	if m.NextMap() != "q2dm1" {
		t.Fatalf("next map = %q", m.NextMap())
	}
}

func TestTimeLimitExcludesTimeout(t *testing.T) {
	host := &mockHost{auto: "q2dm2"}
	m := newMachine(t, gametype.FFA, Config{TimeoutLength: time.Minute}, host)
	m.limits.TimeLimit = 10 * time.Second
	m.Tick(0, ffaSnap(0, 0))

	m.Tick(5*time.Second, ffaSnap(0, 0))
	if err := m.Pause(5*time.Second, "alice", 0); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := m.Pause(6*time.Second, "bob", 0); err == nil {
		t.Fatalf("double pause should fail")
	}
	m.Tick(20*time.Second, ffaSnap(0, 0))
	if m.State() != StateTimeout {
		t.Fatalf("state = %v, want timeout", m.State())
	}
	if err := m.Resume(20 * time.Second); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := m.Elapsed(20 * time.Second); got != 5*time.Second {
		t.Fatalf("elapsed = %v, want 5s", got)
	}

	m.Tick(24*time.Second, ffaSnap(0, 0))
	if m.State() != StateInProgress {
		t.Fatalf("time limit hit early")
	}
	m.Tick(25*time.Second, ffaSnap(0, 0))
	m.Tick(25*time.Second+frame, ffaSnap(0, 0))
	if m.State() != StateIntermission || m.Result().Exit != gamemode.ExitTimeLimit {
		t.Fatalf("state = %v result = %+v", m.State(), m.Result())
	}
}

func TestTimeoutAutoExpires(t *testing.T) {
	host := &mockHost{}
	m := newMachine(t, gametype.FFA, Config{TimeoutLength: 30 * time.Second}, host)
	m.Tick(0, ffaSnap(0))
	if err := m.Pause(time.Second, "admin", 0); err != nil {
		t.Fatalf("pause: %v", err)
	}
	m.Tick(30*time.Second, ffaSnap(0))
	if m.State() != StateTimeout {
		t.Fatalf("expired early")
	}
	m.Tick(31*time.Second, ffaSnap(0))
	if m.State() != StateInProgress {
		t.Fatalf("state = %v, want in progress", m.State())
	}
}

func TestRoundModeEliminationEndsRound(t *testing.T) {
	host := &mockHost{auto: "q2dm3"}
	m := newMachine(t, gametype.ClanArena, Config{}, host)
	snap := Snapshot{
		PlayingHumans: 2,
		Players: []gamemode.Standing{
			{Slot: 0, Team: player.TeamRed, Alive: true},
			{Slot: 1, Team: player.TeamBlue, Alive: false},
		},
	}
	m.Tick(0, snap)
	if len(host.rounds) != 1 || host.rounds[0] != 1 {
		t.Fatalf("rounds = %v, want [1]", host.rounds)
	}

	m.Tick(frame, snap)
	m.Tick(2*frame, snap)
	if m.State() != StateInProgress {
		t.Fatalf("elimination ended the match in a round mode")
	}
	if m.Round() != 1 || len(host.ended) != 1 || host.ended[0].WinnerTeam != player.TeamRed {
		t.Fatalf("round = %d ended = %+v", m.Round(), host.ended)
	}
	if host.rounds[len(host.rounds)-1] != 2 {
		t.Fatalf("next round not started: %v", host.rounds)
	}
}

func TestRoundLimitSkipsFinalRoundStart(t *testing.T) {
	host := &mockHost{auto: "q2dm3"}
	m := newMachine(t, gametype.ClanArena, Config{}, host)
	m.limits.RoundLimit = 1
	snap := Snapshot{
		PlayingHumans: 2,
		Players: []gamemode.Standing{
			{Slot: 0, Team: player.TeamRed, Alive: true},
			{Slot: 1, Team: player.TeamBlue, Alive: false},
		},
	}
	m.Tick(0, snap)
	m.Tick(frame, snap)
	m.Tick(2*frame, snap)
	if m.Round() != 1 {
		t.Fatalf("round = %d, want 1", m.Round())
	}
	if len(host.rounds) != 1 {
		t.Fatalf("rounds started = %v, want [1]", host.rounds)
	}

	m.Tick(3*frame, snap)
	m.Tick(4*frame, snap)
	if m.State() != StateIntermission || m.Result().Exit != gamemode.ExitRoundLimit {
		t.Fatalf("state = %v result = %+v, want roundlimit intermission", m.State(), m.Result())
	}
}

func TestWaveClearedReachesRoundLimit(t *testing.T) {
	host := &mockHost{auto: "q2dm3"}
	m := newMachine(t, gametype.Horde, Config{}, host)
	snap := Snapshot{
		PlayingHumans: 1,
		Players:       []gamemode.Standing{{Slot: 0, Team: player.TeamFree, Alive: true}},
	}
	if err := m.WaveCleared(0); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("err = %v, want ErrNotInProgress", err)
	}
	m.Tick(0, snap)
	if len(host.rounds) != 0 {
		t.Fatalf("horde started a round: %v", host.rounds)
	}

	limit := m.Limits().RoundLimit
	now := frame
	for i := 0; i < limit; i++ {
		if err := m.WaveCleared(now); err != nil {
			t.Fatalf("wave cleared: %v", err)
		}
		m.Tick(now, snap)
		now += frame
	}
	if m.Round() != limit {
		t.Fatalf("round = %d, want %d", m.Round(), limit)
	}
	if len(host.rounds) != limit-1 || host.rounds[len(host.rounds)-1] != limit {
		t.Fatalf("waves started = %v", host.rounds)
	}

	m.Tick(now, snap)
	if m.State() != StateIntermission || m.Result().Exit != gamemode.ExitRoundLimit {
		t.Fatalf("state = %v result = %+v, want roundlimit intermission", m.State(), m.Result())
	}
}

func TestWaveClearedNeedsHorde(t *testing.T) {
	m := newMachine(t, gametype.FFA, Config{}, &mockHost{})
	m.Tick(0, ffaSnap(0))
	if err := m.WaveCleared(frame); !errors.Is(err, ErrNotHorde) {
		t.Fatalf("err = %v, want ErrNotHorde", err)
	}
}

func TestNextMapOrder(t *testing.T) {
	t.Run("override", func(t *testing.T) {
		host := &mockHost{queue: []string{"queued"}, voteOpens: true, auto: "auto"}
		m := newMachine(t, gametype.FFA, Config{MapVote: true}, host)
		m.SetNextMap("admin")
		m.Tick(0, ffaSnap(0))
		_ = m.ForceEnd(frame)
		if m.NextMap() != "admin" || host.votes != 0 {
			t.Fatalf("next = %q votes = %d", m.NextMap(), host.votes)
		}
	})
	t.Run("queue", func(t *testing.T) {
		host := &mockHost{queue: []string{"queued"}, voteOpens: true, auto: "auto"}
		m := newMachine(t, gametype.FFA, Config{MapVote: true}, host)
		m.Tick(0, ffaSnap(0))
		_ = m.ForceEnd(frame)
		if m.NextMap() != "queued" || host.votes != 0 {
			t.Fatalf("next = %q votes = %d", m.NextMap(), host.votes)
		}
	})
	t.Run("vote", func(t *testing.T) {
		host := &mockHost{voteOpens: true, auto: "auto"}
		m := newMachine(t, gametype.FFA, Config{MapVote: true}, host)
		m.Tick(0, ffaSnap(0))
		_ = m.ForceEnd(frame)
		if !m.Voting() || m.NextMap() != "" {
			t.Fatalf("vote not started")
		}
		m.VoteFinished("voted")
		if m.NextMap() != "voted" {
			t.Fatalf("next = %q", m.NextMap())
		}
	})
	t.Run("autoselect", func(t *testing.T) {
		host := &mockHost{auto: "auto"}
		m := newMachine(t, gametype.FFA, Config{MapVote: true}, host)
		m.Tick(0, ffaSnap(0))
		_ = m.ForceEnd(frame)
		if m.NextMap() != "auto" {
			t.Fatalf("next = %q", m.NextMap())
		}
	})
}

func TestNoMapsStallsInIntermission(t *testing.T) {
	host := &mockHost{}
	m := newMachine(t, gametype.FFA, Config{IntermissionTime: time.Second}, host)
	m.Tick(0, ffaSnap(0))
	_ = m.ForceEnd(frame)
	before := len(host.broadcasts)

	for i := 0; i < 50; i++ {
		m.Tick(frame*time.Duration(i+2), ffaSnap(0))
	}
	if m.State() != StateIntermission || m.Done() || len(host.changed) != 0 {
		t.Fatalf("machine left intermission without a map")
	}
	if len(host.broadcasts) != before {
		t.Fatalf("failure broadcast repeated: %v", host.broadcasts[before:])
	}

	m.SetNextMap("rescue")
	m.Tick(10*time.Second, ffaSnap(0))
	if !m.Done() || len(host.changed) != 1 || host.changed[0] != "rescue" {
		t.Fatalf("admin nextmap did not unblock: %v", host.changed)
	}
}

func TestIntermissionWaitsMinimumTime(t *testing.T) {
	host := &mockHost{auto: "next"}
	m := newMachine(t, gametype.FFA, Config{IntermissionTime: 5 * time.Second}, host)
	m.Tick(0, ffaSnap(0))
	_ = m.ForceEnd(time.Second)

	m.Tick(5*time.Second, ffaSnap(0))
	if m.Done() {
		t.Fatalf("map changed before the intermission time")
	}
	m.Tick(6*time.Second, ffaSnap(0))
	m.Tick(7*time.Second, ffaSnap(0))
	if !m.Done() || len(host.changed) != 1 {
		t.Fatalf("changed = %v, want exactly one map change", host.changed)
	}
}
