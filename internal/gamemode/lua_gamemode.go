package gamemode

import (
	"fmt"
	"log/slog"

	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/player"
	"github.com/siohaza/q2match/pkg/lua"
)

// LuaRuleset lets a script decide the exit conditions. The script may
// define check_exit(standings) returning a reason ("scorelimit",
// "elimination", "roundlimit", "timelimit" or "none") and a winner. For team
// gametypes the winner is 1 for red and 2 for blue, otherwise a client slot.
// Returning nil, or failing, defers to the built-in ruleset.
type LuaRuleset struct {
	vm       *lua.VM
	name     string
	fallback Ruleset
	logger   *slog.Logger
}

func NewLuaRuleset(scriptPath string, fallback Ruleset, logger *slog.Logger) (*LuaRuleset, error) {
	vm := lua.NewVM()
	if err := vm.LoadFile(scriptPath); err != nil {
		return nil, fmt.Errorf("failed to load rules script: %w", err)
	}
	return newLuaRuleset(vm, fallback, logger), nil
}

func NewLuaRulesetFromString(code string, fallback Ruleset, logger *slog.Logger) (*LuaRuleset, error) {
	vm := lua.NewVM()
	if err := vm.LoadString(code); err != nil {
		return nil, fmt.Errorf("failed to load rules script: %w", err)
	}
	return newLuaRuleset(vm, fallback, logger), nil
}

func newLuaRuleset(vm *lua.VM, fallback Ruleset, logger *slog.Logger) *LuaRuleset {
	if logger == nil {
		logger = slog.Default()
	}
	name, err := vm.GetGlobalString("name")
	if err != nil {
		name = "lua"
	}
	return &LuaRuleset{
		vm:       vm,
		name:     name,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *LuaRuleset) Name() string {
	return r.name
}

func (r *LuaRuleset) CheckExit(s Standings) Result {
	if !r.vm.HasFunction("check_exit") {
		return r.fallback.CheckExit(s)
	}

	results, err := r.vm.CallFunctionWithReturn("check_exit", 2, standingsTable(s))
	if err != nil {
		r.logger.Error("lua ruleset check_exit error", "ruleset", r.name, "error", err)
		return r.fallback.CheckExit(s)
	}

	reason, ok := results[0].(string)
	if !ok {
		return r.fallback.CheckExit(s)
	}
	exit, ok := ParseExit(reason)
	if !ok {
		r.logger.Warn("lua ruleset returned unknown exit reason", "ruleset", r.name, "reason", reason)
		return r.fallback.CheckExit(s)
	}

	res := NoExit()
	res.Exit = exit
	if winner, ok := results[1].(float64); ok {
		if s.Info.Has(gametype.FlagTeams) {
			switch int(winner) {
			case 1:
				res.WinnerTeam = player.TeamRed
			case 2:
				res.WinnerTeam = player.TeamBlue
			}
		} else {
			res.WinnerSlot = int(winner)
		}
	}
	return res
}

func standingsTable(s Standings) map[string]any {
	players := make([]map[string]any, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, map[string]any{
			"slot":  p.Slot,
			"team":  p.Team.String(),
			"score": p.Score,
			"alive": p.Alive,
			"lives": p.Lives,
		})
	}
	return map[string]any{
		"gametype":    s.Info.ShortName,
		"score_limit": s.ScoreLimit,
		"time_limit":  s.TimeLimit.Seconds(),
		"round_limit": s.RoundLimit,
		"elapsed":     s.Elapsed.Seconds(),
		"round":       s.Round,
		"red_score":   s.TeamScores[0],
		"blue_score":  s.TeamScores[1],
		"players":     players,
	}
}
