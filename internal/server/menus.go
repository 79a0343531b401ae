package server

import (
	"fmt"
	"slices"
	"strings"

	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/match"
	"github.com/siohaza/q2match/internal/menu"
	"github.com/siohaza/q2match/internal/player"
	"github.com/siohaza/q2match/internal/vote"
)

const (
	mapVoteTag = "mapvote"
	// scroll window for long map and player lists
	listRows = 10
)

func (s *Server) session(slot int) (*menu.Session, bool) {
	if slot < 0 || slot >= len(s.sessions) || s.sessions[slot] == nil {
		return nil, false
	}
	return s.sessions[slot], true
}

func (s *Server) markAllDirty() {
	for _, sess := range s.sessions {
		if sess != nil && sess.State() == menu.Open {
			sess.MarkDirty()
		}
	}
}

// flushMenus sends a fresh layout to every client whose menu changed.
func (s *Server) flushMenus() {
	for _, sess := range s.sessions {
		if sess == nil || !sess.Dirty() {
			continue
		}
		rows := sess.Render()
		if rows == nil {
			s.engine.SetLayout(sess.Slot, nil)
			continue
		}
		layout, err := menu.Layout(rows, sess.Width)
		if err != nil {
			s.logger.Error("failed to build menu layout", "slot", sess.Slot, "error", err)
			continue
		}
		s.engine.SetLayout(sess.Slot, layout)
	}
}

func (s *Server) MenuNext(slot int) {
	if sess, ok := s.session(slot); ok {
		sess.Next()
	}
}

func (s *Server) MenuPrev(slot int) {
	if sess, ok := s.session(slot); ok {
		sess.Prev()
	}
}

func (s *Server) MenuSelect(slot int) {
	if sess, ok := s.session(slot); ok {
		sess.Select()
	}
}

func (s *Server) MenuClose(slot int) {
	if sess, ok := s.session(slot); ok {
		sess.Close()
	}
}

func (s *Server) open(slot int, m *menu.Menu) {
	if sess, ok := s.session(slot); ok {
		sess.Open(m)
	}
}

func header(lines ...string) []menu.Entry {
	entries := make([]menu.Entry, 0, len(lines)+1)
	for _, l := range lines {
		entries = append(entries, menu.Entry{Text: l, Align: menu.AlignCenter})
	}
	return append(entries, menu.Entry{})
}

func (s *Server) OpenMainMenu(slot int) {
	s.open(slot, s.mainMenu(slot))
}

func (s *Server) mainMenu(slot int) *menu.Menu {
	m := menu.New()
	m.Update = func(m *menu.Menu) {
		c, ok := s.players.Get(slot)
		if !ok {
			return
		}
		m.Entries = header(
			s.config.Server.Name,
			fmt.Sprintf("%s on %s", s.info.Name, s.mapName),
			fmt.Sprintf("*%s*", s.machine.State()),
		)

		if c.Playing() {
			m.Add(menu.Entry{Text: "Spectate", Select: func(*menu.Session) { s.Join(slot, player.TeamSpectator, false, false) }})
		} else {
			m.Add(menu.Entry{Text: "Join the game", Select: func(sess *menu.Session) { sess.Open(s.joinMenu(slot)) }})
		}

		if c.Playing() && (s.machine.State() == match.StateWarmup || s.machine.State() == match.StateCountdown) {
			text := "Ready up"
			if c.Ready {
				text = "Not ready"
			}
			ready := !c.Ready
			m.Add(menu.Entry{Text: text, Select: func(*menu.Session) { s.SetReady(slot, ready) }})
		}

		if s.selector.Active() {
			m.Add(menu.Entry{Text: "Map vote", Select: func(*menu.Session) { s.openMapVoteMenu(slot) }})
		}
		if s.config.Voting.CallvoteEnabled && s.machine.State() != match.StateIntermission {
			m.Add(menu.Entry{Text: "Call a vote", Select: func(sess *menu.Session) { sess.Open(s.callVoteMenu(slot)) }})
		}
		if c.Admin {
			m.Add(menu.Entry{Text: "Admin", Select: func(sess *menu.Session) { sess.Open(s.adminMenu(slot)) }})
		}

		m.Add(menu.Entry{})
		m.Add(menu.Entry{Text: "Close", Select: func(sess *menu.Session) { sess.Close() }})
	}
	m.Update(m)
	return m
}

func (s *Server) joinMenu(slot int) *menu.Menu {
	m := menu.New()
	m.Update = func(m *menu.Menu) {
		m.Entries = header("Join the game")
		switch {
		case s.info.Has(gametype.FlagTeams):
			red := s.players.TeamCount(player.TeamRed)
			blue := s.players.TeamCount(player.TeamBlue)
			m.Add(menu.Entry{Text: fmt.Sprintf("Red team (%d)", red), Select: s.joinAction(slot, player.TeamRed, false)})
			m.Add(menu.Entry{Text: fmt.Sprintf("Blue team (%d)", blue), Select: s.joinAction(slot, player.TeamBlue, false)})
			m.Add(menu.Entry{Text: "Auto", Select: s.joinAction(slot, player.TeamFree, false)})
		case s.info.Has(gametype.FlagOneVOne):
			m.Add(menu.Entry{Text: "Play", Select: s.joinAction(slot, player.TeamFree, false)})
			m.Add(menu.Entry{Text: fmt.Sprintf("Join the queue (%d waiting)", len(s.players.DuelQueue())), Select: s.joinAction(slot, player.TeamFree, true)})
		default:
			m.Add(menu.Entry{Text: fmt.Sprintf("Play (%d playing)", len(s.players.Playing())), Select: s.joinAction(slot, player.TeamFree, false)})
		}
		m.Add(menu.Entry{})
		m.Add(menu.Entry{Text: "Back", Select: func(sess *menu.Session) { sess.Open(s.mainMenu(slot)) }})
	}
	m.Update(m)
	return m
}

func (s *Server) joinAction(slot int, team player.Team, queue bool) func(*menu.Session) {
	return func(sess *menu.Session) {
		s.Join(slot, team, queue, false)
		sess.Close()
	}
}

// map vote

func (s *Server) openMapVoteMenus() {
	for _, slot := range s.players.HumanSlots() {
		s.openMapVoteMenu(slot)
	}
}

func (s *Server) openMapVoteMenu(slot int) {
	if !s.selector.Active() {
		return
	}
	m := menu.New()
	m.Context = mapVoteTag
	m.Update = func(m *menu.Menu) {
		left := int(s.selector.Remaining(s.levelTime).Seconds())
		m.Entries = header("Vote for the next map", fmt.Sprintf("%d seconds left", left))
		mine := s.selector.VoteOf(slot)
		for i := 0; i < s.selector.NumCandidates(); i++ {
			e, ok := s.selector.Candidate(i)
			if !ok {
				continue
			}
			mark := " "
			if i == mine {
				mark = "*"
			}
			choice := i
			m.Add(menu.Entry{
				Text: fmt.Sprintf("%s%d. %s (%d)", mark, i+1, e.DisplayName(), s.selector.Tally(i)),
				Select: func(sess *menu.Session) {
					if err := s.selector.CastVote(slot, choice); err != nil {
						s.engine.Print(slot, err.Error())
					}
				},
			})
		}
		m.Add(menu.Entry{})
		m.Add(menu.Entry{Text: "Close", Select: func(sess *menu.Session) { sess.Close() }})
	}
	m.Update(m)
	s.open(slot, m)
}

func (s *Server) markMapVoteDirty() {
	for _, sess := range s.sessions {
		if sess != nil && sess.Menu() != nil && sess.Menu().Context == mapVoteTag {
			sess.MarkDirty()
		}
	}
}

func (s *Server) mapVoteFinished(name string, outcome vote.Outcome) {
	for _, sess := range s.sessions {
		if sess != nil {
			sess.Close()
		}
	}
	s.logger.Info("map vote finished", "map", name, "outcome", outcome)
	s.machine.VoteFinished(name)
}

// call votes

func (s *Server) callVoteAllowed(k vote.Kind) bool {
	return slices.ContainsFunc(s.config.Voting.AllowedCallvotes, func(name string) bool {
		return strings.EqualFold(name, k.String())
	})
}

func (s *Server) callVoteMenu(slot int) *menu.Menu {
	m := menu.New()
	m.Update = func(m *menu.Menu) {
		if v := s.callvotes.Active(); v != nil {
			m.Entries = header(s.callvotes.Status(s.clock))
			m.Add(menu.Entry{Text: "Vote yes", Select: s.ballotAction(slot, true)})
			m.Add(menu.Entry{Text: "Vote no", Select: s.ballotAction(slot, false)})
		} else {
			m.Entries = header("Call a vote")
			for _, k := range vote.Kinds() {
				if !s.callVoteAllowed(k) {
					continue
				}
				switch k {
				case vote.KindMap:
					m.Add(menu.Entry{Text: "Change map", Select: func(sess *menu.Session) { sess.Open(s.mapListMenu(slot)) }})
				case vote.KindKick:
					m.Add(menu.Entry{Text: "Kick a player", Select: func(sess *menu.Session) { sess.Open(s.kickListMenu(slot)) }})
				default:
					kind := k
					m.Add(menu.Entry{Text: strings.ToUpper(kind.String()[:1]) + kind.String()[1:], Select: func(sess *menu.Session) {
						s.callVoteAndReport(slot, kind, "")
						sess.Close()
					}})
				}
			}
		}
		m.Add(menu.Entry{})
		m.Add(menu.Entry{Text: "Back", Select: func(sess *menu.Session) { sess.Open(s.mainMenu(slot)) }})
	}
	m.Update(m)
	return m
}

func (s *Server) ballotAction(slot int, yes bool) func(*menu.Session) {
	return func(sess *menu.Session) {
		if err := s.callvotes.Cast(slot, yes); err != nil {
			s.engine.Print(slot, err.Error())
		}
		sess.Close()
	}
}

func (s *Server) callVoteAndReport(slot int, kind vote.Kind, arg string) {
	if err := s.CallVote(slot, kind, arg); err != nil {
		s.engine.Print(slot, err.Error())
	}
}

func (s *Server) mapListMenu(slot int) *menu.Menu {
	m := menu.New(header("Change map to")...)
	m.Rows = listRows
	for _, h := range s.pool.Cycleable() {
		e, ok := s.pool.Get(h)
		if !ok || !e.Supports(s.gametype) {
			continue
		}
		name := e.Filename
		m.Add(menu.Entry{Text: e.DisplayName(), Scrollable: true, Select: func(sess *menu.Session) {
			s.callVoteAndReport(slot, vote.KindMap, name)
			sess.Close()
		}})
	}
	m.Add(menu.Entry{})
	m.Add(menu.Entry{Text: "Back", Select: func(sess *menu.Session) { sess.Open(s.callVoteMenu(slot)) }})
	return m
}

func (s *Server) kickListMenu(slot int) *menu.Menu {
	m := menu.New(header("Kick which player")...)
	m.Rows = listRows
	for _, c := range s.players.All() {
		if c.Slot == slot {
			continue
		}
		target := c.Slot
		m.Add(menu.Entry{Text: c.Name, Scrollable: true, Select: func(sess *menu.Session) {
			s.callVoteAndReport(slot, vote.KindKick, fmt.Sprint(target))
			sess.Close()
		}})
	}
	m.Add(menu.Entry{})
	m.Add(menu.Entry{Text: "Back", Select: func(sess *menu.Session) { sess.Open(s.callVoteMenu(slot)) }})
	return m
}

// admin

func (s *Server) OpenAdminMenu(slot int) bool {
	c, ok := s.players.Get(slot)
	if !ok || !c.Admin {
		return false
	}
	s.open(slot, s.adminMenu(slot))
	return true
}

func (s *Server) adminMenu(slot int) *menu.Menu {
	m := menu.New()
	m.Update = func(m *menu.Menu) {
		m.Entries = header("Admin")
		switch s.machine.State() {
		case match.StateWarmup, match.StateCountdown:
			m.Add(menu.Entry{Text: "Force start", Select: func(*menu.Session) { s.reportErr(slot, s.machine.ForceStart(s.levelTime)) }})
		case match.StateInProgress:
			m.Add(menu.Entry{Text: "Timeout", Select: func(*menu.Session) { s.reportErr(slot, s.machine.Pause(s.levelTime, s.nameOf(slot), 0)) }})
			m.Add(menu.Entry{Text: "End match", Select: func(*menu.Session) { s.reportErr(slot, s.machine.ForceEnd(s.levelTime)) }})
		case match.StateTimeout:
			m.Add(menu.Entry{Text: "Resume", Select: func(*menu.Session) { s.reportErr(slot, s.machine.Resume(s.levelTime)) }})
		}
		if s.machine.State() != match.StateIntermission {
			m.Add(menu.Entry{Text: "Restart match", Select: func(*menu.Session) { s.machine.Restart(s.levelTime) }})
		}

		next := gametype.Normalize(s.gametypeValue)
		m.Add(menu.Entry{Text: fmt.Sprintf("Gametype next map: %s", gametype.GetInfo(next).Name), Select: func(sess *menu.Session) {
			v := int(next) + 1
			if !gametype.IsValid(v) {
				v = int(gametype.First)
			}
			s.SetGametypeValue(v)
			sess.MarkDirty()
		}})

		mv := "off"
		if s.config.Match.MapVote {
			mv = "on"
		}
		m.Add(menu.Entry{Text: fmt.Sprintf("Map vote: %s", mv), Select: func(sess *menu.Session) {
			s.config.Match.MapVote = !s.config.Match.MapVote
			sess.MarkDirty()
		}})
		m.Add(menu.Entry{Text: "Set next map", Select: func(sess *menu.Session) { sess.Open(s.nextMapMenu(slot)) }})

		m.Add(menu.Entry{})
		m.Add(menu.Entry{Text: "Back", Select: func(sess *menu.Session) { sess.Open(s.mainMenu(slot)) }})
	}
	m.Update(m)
	return m
}

func (s *Server) nextMapMenu(slot int) *menu.Menu {
	m := menu.New(header("Set next map")...)
	m.Rows = listRows
	for _, h := range s.pool.Handles() {
		e, ok := s.pool.Get(h)
		if !ok {
			continue
		}
		name := e.Filename
		m.Add(menu.Entry{Text: e.DisplayName(), Scrollable: true, Select: func(sess *menu.Session) {
			s.machine.SetNextMap(name)
			s.engine.Broadcast(fmt.Sprintf("Next map set to %s", name))
			sess.Open(s.adminMenu(slot))
		}})
	}
	m.Add(menu.Entry{})
	m.Add(menu.Entry{Text: "Back", Select: func(sess *menu.Session) { sess.Open(s.adminMenu(slot)) }})
	return m
}

func (s *Server) reportErr(slot int, err error) {
	if err != nil {
		s.engine.Print(slot, err.Error())
	}
}

func (s *Server) nameOf(slot int) string {
	if c, ok := s.players.Get(slot); ok {
		return c.Name
	}
	return "admin"
}
