package main

import (
	"fmt"
	"log/slog"
)

// consoleEngine stands in for the game engine when q2match runs on its
// own. Messages go to stdout and everything else to the log.
type consoleEngine struct {
	logger *slog.Logger
}

func newConsoleEngine(logger *slog.Logger) *consoleEngine {
	return &consoleEngine{logger: logger}
}

func (e *consoleEngine) LoadMap(name string) {
	e.logger.Info("engine load map", "map", name)
}

func (e *consoleEngine) Broadcast(msg string) {
	fmt.Println(msg)
}

func (e *consoleEngine) Print(slot int, msg string) {
	fmt.Printf("[%d] %s\n", slot, msg)
}

func (e *consoleEngine) SetLayout(slot int, layout []byte) {
	e.logger.Debug("engine layout", "slot", slot, "bytes", len(layout))
}

func (e *consoleEngine) Kick(slot int, reason string) {
	e.logger.Info("engine kick", "slot", slot, "reason", reason)
}
