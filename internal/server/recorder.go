package server

import (
	"github.com/siohaza/q2match/internal/callbacks"
	"github.com/siohaza/q2match/internal/gamemode"
	"github.com/siohaza/q2match/internal/history"
)

// historyRecorder stores every finished match in the map history.
type historyRecorder struct {
	callbacks.DefaultCallbacks
	server *Server
}

func (r *historyRecorder) OnMatchEnd(mapName string, res gamemode.Result) {
	s := r.server
	err := s.history.Record(history.Play{
		Map:      mapName,
		GameType: s.info.ShortName,
		Players:  s.players.PlayingHumans(),
		Exit:     res.Exit.String(),
		Winner:   s.winnerName(res),
	})
	if err != nil {
		s.logger.Warn("failed to record match", "map", mapName, "error", err)
	}
}
