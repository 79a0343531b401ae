package player

import (
	"time"

	"github.com/samber/lo"
)

type Team int

const (
	TeamSpectator Team = iota
	TeamFree
	TeamRed
	TeamBlue
)

func (t Team) String() string {
	switch t {
	case TeamFree:
		return "free"
	case TeamRed:
		return "red"
	case TeamBlue:
		return "blue"
	default:
		return "spectator"
	}
}

func (t Team) Playing() bool {
	return t != TeamSpectator
}

// Index maps the two playing teams to 0/1 for score arrays.
func (t Team) Index() (int, bool) {
	switch t {
	case TeamRed:
		return 0, true
	case TeamBlue:
		return 1, true
	default:
		return 0, false
	}
}

type Client struct {
	Slot      int
	Name      string
	SocialID  string
	IP        string
	Bot       bool
	Connected bool
	Admin     bool

	Team  Team
	Score int
	Ready bool
	Alive bool
	Lives int

	// duel queue position; zero when not queued
	QueuedAt time.Duration

	ConnectedAt time.Duration
	Prefs       map[string]string
}

func (c *Client) Playing() bool {
	return c.Connected && c.Team.Playing()
}

func (c *Client) Human() bool {
	return !c.Bot
}

func (c *Client) Queued() bool {
	return c.QueuedAt > 0
}

type Manager struct {
	slots []*Client
}

func NewManager(maxClients int) *Manager {
	if maxClients <= 0 {
		maxClients = 1
	}
	return &Manager{
		slots: make([]*Client, maxClients),
	}
}

func (m *Manager) MaxClients() int {
	return len(m.slots)
}

func (m *Manager) Add(c *Client) bool {
	if c.Slot < 0 || c.Slot >= len(m.slots) {
		return false
	}
	c.Connected = true
	m.slots[c.Slot] = c
	return true
}

func (m *Manager) Remove(slot int) (*Client, bool) {
	c, ok := m.Get(slot)
	if !ok {
		return nil, false
	}
	c.Connected = false
	m.slots[slot] = nil
	return c, true
}

func (m *Manager) Get(slot int) (*Client, bool) {
	if slot < 0 || slot >= len(m.slots) {
		return nil, false
	}
	c := m.slots[slot]
	if c == nil || !c.Connected {
		return nil, false
	}
	return c, true
}

func (m *Manager) Connected(slot int) bool {
	_, ok := m.Get(slot)
	return ok
}

func (m *Manager) FindFreeSlot() (int, bool) {
	for i, c := range m.slots {
		if c == nil {
			return i, true
		}
	}
	return 0, false
}

func (m *Manager) All() []*Client {
	return lo.Filter(m.slots, func(c *Client, _ int) bool {
		return c != nil && c.Connected
	})
}

func (m *Manager) ForEach(fn func(*Client)) {
	for _, c := range m.All() {
		fn(c)
	}
}

func (m *Manager) Count() int {
	return len(m.All())
}

func (m *Manager) Humans() []*Client {
	return lo.Filter(m.All(), func(c *Client, _ int) bool {
		return c.Human()
	})
}

func (m *Manager) HumanSlots() []int {
	return lo.Map(m.Humans(), func(c *Client, _ int) int {
		return c.Slot
	})
}

func (m *Manager) Playing() []*Client {
	return lo.Filter(m.All(), func(c *Client, _ int) bool {
		return c.Playing()
	})
}

func (m *Manager) PlayingHumans() int {
	return lo.CountBy(m.Playing(), func(c *Client) bool {
		return c.Human()
	})
}

func (m *Manager) ReadyHumans() int {
	return lo.CountBy(m.Playing(), func(c *Client) bool {
		return c.Human() && c.Ready
	})
}

func (m *Manager) TeamCount(team Team) int {
	return lo.CountBy(m.All(), func(c *Client) bool {
		return c.Team == team
	})
}

// DuelQueue returns queued spectators, oldest first.
func (m *Manager) DuelQueue() []*Client {
	queued := lo.Filter(m.All(), func(c *Client, _ int) bool {
		return c.Queued() && !c.Team.Playing()
	})
	for i := 1; i < len(queued); i++ {
		for j := i; j > 0 && queued[j].QueuedAt < queued[j-1].QueuedAt; j-- {
			queued[j], queued[j-1] = queued[j-1], queued[j]
		}
	}
	return queued
}

func (m *Manager) ResetScores() {
	for _, c := range m.All() {
		c.Score = 0
	}
}

func (m *Manager) ResetReady() {
	for _, c := range m.All() {
		c.Ready = false
	}
}
