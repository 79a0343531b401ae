package gamemode

import (
	"time"

	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/player"
)

type Exit int

const (
	ExitNone Exit = iota
	ExitScoreLimit
	ExitTimeLimit
	ExitElimination
	ExitRoundLimit
)

func (e Exit) String() string {
	switch e {
	case ExitScoreLimit:
		return "scorelimit"
	case ExitTimeLimit:
		return "timelimit"
	case ExitElimination:
		return "elimination"
	case ExitRoundLimit:
		return "roundlimit"
	default:
		return "none"
	}
}

func ParseExit(s string) (Exit, bool) {
	for e := ExitNone; e <= ExitRoundLimit; e++ {
		if e.String() == s {
			return e, true
		}
	}
	return ExitNone, false
}

type Standing struct {
	Slot  int
	Team  player.Team
	Score int
	Alive bool
	Lives int
}

// Standings is the read-only view a ruleset evaluates each frame.
type Standings struct {
	Info       gametype.Info
	ScoreLimit int
	TimeLimit  time.Duration
	RoundLimit int
	Elapsed    time.Duration
	// completed rounds
	Round      int
	Players    []Standing
	TeamScores [2]int
}

type Result struct {
	Exit       Exit
	WinnerTeam player.Team
	WinnerSlot int
}

func NoExit() Result {
	return Result{Exit: ExitNone, WinnerTeam: player.TeamSpectator, WinnerSlot: -1}
}

func (r Result) Exited() bool {
	return r.Exit != ExitNone
}

// Ruleset evaluates the win conditions of one gametype category. The time
// limit is not part of it; the match machine checks that itself.
type Ruleset interface {
	Name() string
	CheckExit(s Standings) Result
}

// For picks the built-in ruleset for a gametype.
func For(info gametype.Info) Ruleset {
	switch {
	case info.Has(gametype.FlagHorde):
		return hordeRules{}
	case info.Has(gametype.FlagElimination):
		return eliminationRules{}
	case info.Has(gametype.FlagTeams):
		return teamScoreRules{}
	default:
		return fragRules{}
	}
}

type fragRules struct{}

func (fragRules) Name() string { return "frag" }

func (fragRules) CheckExit(s Standings) Result {
	res := NoExit()
	if s.ScoreLimit <= 0 {
		return res
	}
	leader, ok := topScorer(s.Players)
	if ok && leader.Score >= s.ScoreLimit {
		res.Exit = ExitScoreLimit
		res.WinnerSlot = leader.Slot
	}
	return res
}

type teamScoreRules struct{}

func (teamScoreRules) Name() string { return "teamscore" }

func (teamScoreRules) CheckExit(s Standings) Result {
	res := NoExit()
	if s.ScoreLimit > 0 && max(s.TeamScores[0], s.TeamScores[1]) >= s.ScoreLimit {
		res.Exit = ExitScoreLimit
		res.WinnerTeam = leadingTeam(s.TeamScores)
	}
	return res
}

type eliminationRules struct{}

func (eliminationRules) Name() string { return "elimination" }

func (eliminationRules) CheckExit(s Standings) Result {
	res := NoExit()

	if s.Info.Has(gametype.FlagTeams) {
		if s.ScoreLimit > 0 && max(s.TeamScores[0], s.TeamScores[1]) >= s.ScoreLimit {
			res.Exit = ExitScoreLimit
			res.WinnerTeam = leadingTeam(s.TeamScores)
			return res
		}
		if s.RoundLimit > 0 && s.Round >= s.RoundLimit {
			res.Exit = ExitRoundLimit
			res.WinnerTeam = leadingTeam(s.TeamScores)
			return res
		}

		// with lives, a dead player waiting to respawn still holds the side
		lives := s.Info.Has(gametype.FlagLives)
		var players, alive [2]int
		for _, p := range s.Players {
			idx, ok := p.Team.Index()
			if !ok {
				continue
			}
			players[idx]++
			if p.Alive || (lives && p.Lives > 0) {
				alive[idx]++
			}
		}
		if players[0] == 0 || players[1] == 0 {
			return res
		}
		switch {
		case alive[0] == 0 && alive[1] == 0:
			res.Exit = ExitElimination
		case alive[1] == 0:
			res.Exit = ExitElimination
			res.WinnerTeam = player.TeamRed
		case alive[0] == 0:
			res.Exit = ExitElimination
			res.WinnerTeam = player.TeamBlue
		}
		return res
	}

	if s.ScoreLimit > 0 {
		if leader, ok := topScorer(s.Players); ok && leader.Score >= s.ScoreLimit {
			res.Exit = ExitScoreLimit
			res.WinnerSlot = leader.Slot
			return res
		}
	}
	if len(s.Players) < 2 {
		return res
	}
	var survivors []Standing
	for _, p := range s.Players {
		if p.Alive || p.Lives > 0 {
			survivors = append(survivors, p)
		}
	}
	if len(survivors) <= 1 {
		res.Exit = ExitElimination
		if len(survivors) == 1 {
			res.WinnerSlot = survivors[0].Slot
		}
	}
	return res
}

type hordeRules struct{}

func (hordeRules) Name() string { return "horde" }

func (hordeRules) CheckExit(s Standings) Result {
	res := NoExit()
	if s.RoundLimit > 0 && s.Round >= s.RoundLimit {
		res.Exit = ExitRoundLimit
		return res
	}
	if len(s.Players) == 0 {
		return res
	}
	for _, p := range s.Players {
		if p.Alive || p.Lives > 0 {
			return res
		}
	}
	res.Exit = ExitElimination
	return res
}

func topScorer(players []Standing) (Standing, bool) {
	if len(players) == 0 {
		return Standing{}, false
	}
	best := players[0]
	for _, p := range players[1:] {
		if p.Score > best.Score {
			best = p
		}
	}
	return best, true
}

func leadingTeam(scores [2]int) player.Team {
	switch {
	case scores[0] > scores[1]:
		return player.TeamRed
	case scores[1] > scores[0]:
		return player.TeamBlue
	default:
		return player.TeamSpectator
	}
}

// Leader reports who is ahead, for exits the ruleset does not decide itself.
func Leader(s Standings) Result {
	res := NoExit()
	if s.Info.Has(gametype.FlagTeams) {
		res.WinnerTeam = leadingTeam(s.TeamScores)
		return res
	}
	if top, ok := topScorer(s.Players); ok {
		res.WinnerSlot = top.Slot
	}
	return res
}
