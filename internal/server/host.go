package server

import (
	"fmt"

	"github.com/siohaza/q2match/internal/gamemode"
	"github.com/siohaza/q2match/internal/match"
	"github.com/siohaza/q2match/internal/player"
)

// The methods below implement match.Host.

func (s *Server) Broadcast(msg string) {
	s.engine.Broadcast(msg)
}

func (s *Server) ResetMatch() {
	s.resetScores()
	s.heat.Clear()
}

func (s *Server) StartRound(round int) {
	for _, c := range s.players.Playing() {
		s.respawn(c)
	}
	s.engine.Broadcast(fmt.Sprintf("Round %d", round))
}

func (s *Server) RoundEnded(round int, res gamemode.Result) {
	if i, ok := res.WinnerTeam.Index(); ok {
		s.teamScores[i]++
		s.engine.Broadcast(fmt.Sprintf("Round %d won by %s", round, res.WinnerTeam))
		return
	}
	if c, ok := s.players.Get(res.WinnerSlot); ok {
		c.Score++
		s.engine.Broadcast(fmt.Sprintf("Round %d won by %s", round, c.Name))
		return
	}
	s.engine.Broadcast(fmt.Sprintf("Round %d is a draw", round))
}

func (s *Server) PopQueuedMap() (string, bool) {
	r, ok := s.pool.Pop()
	if !ok {
		return "", false
	}
	return r.Map, true
}

func (s *Server) BeginMapVote() bool {
	return s.selector.Begin(s.levelTime, s.criteria())
}

func (s *Server) AutoSelectMap() (string, bool) {
	h, ok := s.picker.AutoSelect(s.pool, s.criteria())
	if !ok {
		return "", false
	}
	e, ok := s.pool.Get(h)
	if !ok {
		return "", false
	}
	return e.Filename, true
}

// ChangeMap defers the level change to the end of the current frame.
func (s *Server) ChangeMap(name string) {
	s.pendingMap = name
}

func (s *Server) StateChanged(from, to match.State) {
	s.callbacks.OnMatchState(from, to)
	if to == match.StateIntermission {
		s.callvotes.Cancel("Vote cancelled, the match is over")
		s.callbacks.OnMatchEnd(s.mapName, s.machine.Result())
	}
	s.markAllDirty()
}

// winnerName describes a result for announcements and history.
func (s *Server) winnerName(res gamemode.Result) string {
	if res.WinnerTeam == player.TeamRed || res.WinnerTeam == player.TeamBlue {
		return res.WinnerTeam.String()
	}
	if c, ok := s.players.Get(res.WinnerSlot); ok {
		return c.Name
	}
	return ""
}
