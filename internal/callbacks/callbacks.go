package callbacks

import (
	"github.com/siohaza/q2match/internal/gamemode"
	"github.com/siohaza/q2match/internal/match"
	"github.com/siohaza/q2match/internal/player"
)

type Callbacks interface {
	OnConnect(c *player.Client) bool
	OnDisconnect(c *player.Client)
	OnTeamChange(c *player.Client, from, to player.Team)
	OnMatchState(from, to match.State)
	OnMatchEnd(mapName string, res gamemode.Result)
	OnMapChange(mapName string)
	OnVoteResult(description string, passed bool)
}

type DefaultCallbacks struct{}

func (d *DefaultCallbacks) OnConnect(c *player.Client) bool                     { return true }
func (d *DefaultCallbacks) OnDisconnect(c *player.Client)                       {}
func (d *DefaultCallbacks) OnTeamChange(c *player.Client, from, to player.Team) {}
func (d *DefaultCallbacks) OnMatchState(from, to match.State)                   {}
func (d *DefaultCallbacks) OnMatchEnd(mapName string, res gamemode.Result)      {}
func (d *DefaultCallbacks) OnMapChange(mapName string)                          {}
func (d *DefaultCallbacks) OnVoteResult(description string, passed bool)        {}

type CallbackChain struct {
	callbacks []Callbacks
}

func NewCallbackChain() *CallbackChain {
	return &CallbackChain{
		callbacks: make([]Callbacks, 0),
	}
}

func (c *CallbackChain) Register(cb Callbacks) {
	c.callbacks = append(c.callbacks, cb)
}

func (c *CallbackChain) Len() int {
	return len(c.callbacks)
}

// OnConnect stops at the first callback that rejects the client.
func (c *CallbackChain) OnConnect(cl *player.Client) bool {
	for _, cb := range c.callbacks {
		if !cb.OnConnect(cl) {
			return false
		}
	}
	return true
}

func (c *CallbackChain) OnDisconnect(cl *player.Client) {
	for _, cb := range c.callbacks {
		cb.OnDisconnect(cl)
	}
}

func (c *CallbackChain) OnTeamChange(cl *player.Client, from, to player.Team) {
	for _, cb := range c.callbacks {
		cb.OnTeamChange(cl, from, to)
	}
}

func (c *CallbackChain) OnMatchState(from, to match.State) {
	for _, cb := range c.callbacks {
		cb.OnMatchState(from, to)
	}
}

func (c *CallbackChain) OnMatchEnd(mapName string, res gamemode.Result) {
	for _, cb := range c.callbacks {
		cb.OnMatchEnd(mapName, res)
	}
}

func (c *CallbackChain) OnMapChange(mapName string) {
	for _, cb := range c.callbacks {
		cb.OnMapChange(mapName)
	}
}

func (c *CallbackChain) OnVoteResult(description string, passed bool) {
	for _, cb := range c.callbacks {
		cb.OnVoteResult(description, passed)
	}
}
