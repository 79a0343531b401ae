package match

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/siohaza/q2match/internal/gamemode"
	"github.com/siohaza/q2match/internal/gametype"
)

var (
	ErrNotInProgress = errors.New("match is not in progress")
	ErrNotPaused     = errors.New("match is not paused")
	ErrAlreadyLive   = errors.New("match already started")
	ErrNotHorde      = errors.New("gametype has no waves")
)

// Host is the part of the server the machine drives.
type Host interface {
	Broadcast(msg string)
	// ResetMatch clears scores when a match goes live.
	ResetMatch()
	StartRound(round int)
	RoundEnded(round int, res gamemode.Result)
	PopQueuedMap() (string, bool)
	// BeginMapVote reports whether a vote was opened. The result comes
	// back through Machine.VoteFinished.
	BeginMapVote() bool
	AutoSelectMap() (string, bool)
	ChangeMap(name string)
	StateChanged(from, to State)
}

type Config struct {
	Warmup           bool
	MinPlayers       int
	CountdownTime    time.Duration
	GraceTime        time.Duration
	IntermissionTime time.Duration
	TimeoutLength    time.Duration
	MapVote          bool
}

type Limits struct {
	ScoreLimit   int
	TimeLimit    time.Duration
	RoundLimit   int
	ReadyPercent float64
}

// Snapshot is the roster view handed to Tick.
type Snapshot struct {
	PlayingHumans int
	ReadyHumans   int
	Players       []gamemode.Standing
	TeamScores    [2]int
}

type Machine struct {
	cfg    Config
	info   gametype.Info
	limits Limits
	rules  gamemode.Ruleset
	host   Host
	logger *slog.Logger

	state      State
	stateSince time.Duration

	matchStart  time.Duration
	pausedTotal time.Duration
	pauseStart  time.Duration
	pauseLength time.Duration
	pausedBy    string

	round int
	grace [gamemode.ExitRoundLimit + 1]time.Duration

	result   gamemode.Result
	nextMap  string
	override string
	voting   bool
	stalled  bool
	done     bool
}

func New(cfg Config, info gametype.Info, limits Limits, rules gamemode.Ruleset, host Host, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		rules = gamemode.For(info)
	}
	if limits.ReadyPercent <= 0 {
		limits.ReadyPercent = info.ReadyUpPercentile
	}
	return &Machine{
		cfg:    cfg,
		info:   info,
		limits: limits,
		rules:  rules,
		host:   host,
		logger: logger,
		state:  StateWarmup,
		result: gamemode.NoExit(),
	}
}

func (m *Machine) State() State { return m.state }
func (m *Machine) Round() int { return m.round }
func (m *Machine) Result() gamemode.Result { return m.result }
func (m *Machine) NextMap() string { return m.nextMap }
func (m *Machine) Voting() bool { return m.voting }
func (m *Machine) Done() bool { return m.done }
func (m *Machine) Limits() Limits { return m.limits }
func (m *Machine) Ruleset() gamemode.Ruleset { return m.rules }
func (m *Machine) Since() time.Duration { return m.stateSince }
func (m *Machine) PausedBy() string { return m.pausedBy }

// Elapsed is live match time, excluding timeouts.
func (m *Machine) Elapsed(now time.Duration) time.Duration {
	switch m.state {
	case StateInProgress:
		return now - m.matchStart - m.pausedTotal
	case StateTimeout:
		return m.pauseStart - m.matchStart - m.pausedTotal
	case StateIntermission:
		return m.stateSince - m.matchStart - m.pausedTotal
	default:
		return 0
	}
}

func (m *Machine) TimeoutRemaining(now time.Duration) time.Duration {
	if m.state != StateTimeout {
		return 0
	}
	return max(m.pauseStart+m.pauseLength-now, 0)
}

func (m *Machine) Tick(now time.Duration, snap Snapshot) {
	switch m.state {
	case StateWarmup:
		if !m.cfg.Warmup {
			m.startMatch(now)
			return
		}
		if m.readyThreshold(snap) {
			m.setState(now, StateCountdown)
			m.host.Broadcast(fmt.Sprintf("Match starting in %d seconds", int(m.cfg.CountdownTime.Seconds())))
		}

	case StateCountdown:
		if !m.readyThreshold(snap) {
			m.setState(now, StateWarmup)
			m.host.Broadcast("Countdown aborted, not enough players ready")
			return
		}
		if now-m.stateSince >= m.cfg.CountdownTime {
			m.startMatch(now)
		}

	case StateInProgress:
		m.checkExit(now, snap)

	case StateTimeout:
		if now-m.pauseStart >= m.pauseLength {
			m.host.Broadcast("Timeout expired")
			m.resume(now)
		}

	case StateIntermission:
		m.tickIntermission(now)
	}
}

func (m *Machine) readyThreshold(snap Snapshot) bool {
	need := max(m.cfg.MinPlayers, 1)
	if snap.PlayingHumans < need {
		return false
	}
	return float64(snap.ReadyHumans) >= m.limits.ReadyPercent*float64(snap.PlayingHumans)
}

func (m *Machine) startMatch(now time.Duration) {
	m.host.ResetMatch()
	m.matchStart = now
	m.pausedTotal = 0
	m.round = 0
	clear(m.grace[:])
	m.setState(now, StateInProgress)
	m.host.Broadcast("Fight!")
	if m.roundBased() {
		m.host.StartRound(1)
	}
}

func (m *Machine) roundBased() bool {
	return m.info.Has(gametype.FlagRounds) && !m.info.Has(gametype.FlagHorde)
}

func (m *Machine) standings(now time.Duration, snap Snapshot) gamemode.Standings {
	return gamemode.Standings{
		Info:       m.info,
		ScoreLimit: m.limits.ScoreLimit,
		TimeLimit:  m.limits.TimeLimit,
		RoundLimit: m.limits.RoundLimit,
		Elapsed:    m.Elapsed(now),
		Round:      m.round,
		Players:    snap.Players,
		TeamScores: snap.TeamScores,
	}
}

func (m *Machine) checkExit(now time.Duration, snap Snapshot) {
	st := m.standings(now, snap)
	res := m.rules.CheckExit(st)

	timeUp := m.limits.TimeLimit > 0 && st.Elapsed >= m.limits.TimeLimit
	if holds(&m.grace[gamemode.ExitTimeLimit], now, m.cfg.GraceTime, timeUp || res.Exit == gamemode.ExitTimeLimit) {
		if res.Exit != gamemode.ExitTimeLimit {
			res = gamemode.Leader(st)
			res.Exit = gamemode.ExitTimeLimit
		}
		m.finish(now, res)
		return
	}

	for _, exit := range []gamemode.Exit{gamemode.ExitScoreLimit, gamemode.ExitRoundLimit, gamemode.ExitElimination} {
		if !holds(&m.grace[exit], now, m.cfg.GraceTime, res.Exit == exit) {
			continue
		}
		if exit == gamemode.ExitElimination && m.roundBased() {
			m.endRound(now, res)
			return
		}
		m.finish(now, res)
		return
	}
}

func (m *Machine) endRound(now time.Duration, res gamemode.Result) {
	m.round++
	m.grace[gamemode.ExitElimination] = 0
	m.logger.Info("round ended", "round", m.round, "winner_team", res.WinnerTeam, "winner_slot", res.WinnerSlot)
	m.host.RoundEnded(m.round, res)
	if m.roundLimitReached() {
		return
	}
	m.host.StartRound(m.round + 1)
}

func (m *Machine) roundLimitReached() bool {
	return m.limits.RoundLimit > 0 && m.round >= m.limits.RoundLimit
}

// WaveCleared counts a cleared horde wave as a completed round. The round
// limit exit is picked up by the following ticks.
func (m *Machine) WaveCleared(now time.Duration) error {
	if !m.info.Has(gametype.FlagHorde) {
		return ErrNotHorde
	}
	if m.state != StateInProgress {
		return ErrNotInProgress
	}
	m.round++
	m.logger.Info("wave cleared", "wave", m.round, "elapsed", m.Elapsed(now))
	m.host.Broadcast(fmt.Sprintf("Wave %d cleared", m.round))
	if !m.roundLimitReached() {
		m.host.StartRound(m.round + 1)
	}
	return nil
}

func (m *Machine) finish(now time.Duration, res gamemode.Result) {
	m.result = res
	m.setState(now, StateIntermission)
	m.logger.Info("match ended", "reason", res.Exit, "winner_team", res.WinnerTeam, "winner_slot", res.WinnerSlot)
	switch res.Exit {
	case gamemode.ExitNone:
		m.host.Broadcast("Match ended by admin")
	default:
		m.host.Broadcast(fmt.Sprintf("Match ended: %s", res.Exit))
	}
	m.resolveNextMap()
}

func (m *Machine) resolveNextMap() {
	if m.override != "" {
		m.nextMap = m.override
		return
	}
	if name, ok := m.host.PopQueuedMap(); ok {
		m.nextMap = name
		m.host.Broadcast(fmt.Sprintf("Next map from queue: %s", name))
		return
	}
	if m.cfg.MapVote && m.host.BeginMapVote() {
		m.voting = true
		return
	}
	m.autoSelect()
}

func (m *Machine) autoSelect() {
	name, ok := m.host.AutoSelectMap()
	if !ok {
		if !m.stalled {
			m.stalled = true
			m.logger.Error("no maps available for autoselect")
			m.host.Broadcast("No maps available, waiting for an admin to set the next map")
		}
		return
	}
	m.nextMap = name
	m.host.Broadcast(fmt.Sprintf("Next map: %s", name))
}

// VoteFinished delivers the map vote outcome. An empty name means the vote
// produced nothing and autoselect is tried instead.
func (m *Machine) VoteFinished(name string) {
	if !m.voting {
		return
	}
	m.voting = false
	switch {
	case m.override != "":
		m.nextMap = m.override
	case name != "":
		m.nextMap = name
	default:
		m.autoSelect()
	}
}

func (m *Machine) tickIntermission(now time.Duration) {
	if m.voting || m.nextMap == "" || m.done {
		return
	}
	if now-m.stateSince < m.cfg.IntermissionTime {
		return
	}
	m.done = true
	m.host.ChangeMap(m.nextMap)
}

// SetNextMap is the admin override. During intermission it also unblocks
// a stalled autoselect.
func (m *Machine) SetNextMap(name string) {
	m.override = name
	if m.state == StateIntermission && !m.voting && !m.done {
		m.nextMap = name
		m.stalled = false
	}
}

func (m *Machine) Pause(now time.Duration, by string, length time.Duration) error {
	if m.state != StateInProgress {
		return ErrNotInProgress
	}
	if length <= 0 {
		length = m.cfg.TimeoutLength
	}
	m.pauseStart = now
	m.pauseLength = length
	m.pausedBy = by
	m.setState(now, StateTimeout)
	m.host.Broadcast(fmt.Sprintf("%s called a timeout", by))
	return nil
}

func (m *Machine) Resume(now time.Duration) error {
	if m.state != StateTimeout {
		return ErrNotPaused
	}
	m.host.Broadcast("Match resumed")
	m.resume(now)
	return nil
}

func (m *Machine) resume(now time.Duration) {
	paused := now - m.pauseStart
	m.pausedTotal += paused
	for i, deadline := range m.grace {
		if deadline != 0 {
			m.grace[i] = deadline + paused
		}
	}
	m.pausedBy = ""
	m.setState(now, StateInProgress)
}

func (m *Machine) ForceStart(now time.Duration) error {
	if m.state != StateWarmup && m.state != StateCountdown {
		return ErrAlreadyLive
	}
	m.startMatch(now)
	return nil
}

func (m *Machine) ForceEnd(now time.Duration) error {
	if !m.state.Playing() {
		return ErrNotInProgress
	}
	if m.state == StateTimeout {
		m.resume(now)
	}
	m.finish(now, gamemode.NoExit())
	return nil
}

// Restart drops the current match back to warmup.
func (m *Machine) Restart(now time.Duration) {
	if m.state == StateIntermission {
		return
	}
	m.host.ResetMatch()
	m.pausedBy = ""
	clear(m.grace[:])
	m.round = 0
	m.setState(now, StateWarmup)
	m.host.Broadcast("Match restarted")
}

func (m *Machine) setState(now time.Duration, to State) {
	from := m.state
	m.state = to
	m.stateSince = now
	if from != to {
		m.logger.Debug("match state changed", "from", from, "to", to)
		m.host.StateChanged(from, to)
	}
}
