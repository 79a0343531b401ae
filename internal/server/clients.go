package server

import (
	"fmt"
	"strconv"

	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/heatmap"
	"github.com/siohaza/q2match/internal/menu"
	"github.com/siohaza/q2match/internal/player"
	"github.com/siohaza/q2match/internal/teams"
)

// ClientConnect admits or rejects a client. The returned string is the
// reject reason shown to the client.
func (s *Server) ClientConnect(slot int, name, socialID, ip string, bot bool) (bool, string) {
	if slot < 0 || slot >= s.players.MaxClients() {
		return false, "Server is full."
	}
	if !bot && s.filter.ShouldBlock(ip) {
		s.logger.Info("connection rejected by ip filter", "slot", slot, "ip", ip)
		return false, "Banned."
	}
	if socialID != "" && s.banned.Contains(socialID) {
		s.logger.Info("connection rejected by ban list", "slot", slot, "id", socialID)
		return false, "You are banned from this server."
	}

	if s.players.Connected(slot) {
		s.ClientDisconnect(slot)
	}

	c := &player.Client{
		Slot:        slot,
		Name:        name,
		SocialID:    socialID,
		IP:          ip,
		Bot:         bot,
		Admin:       socialID != "" && s.admins.Contains(socialID),
		Team:        player.TeamSpectator,
		ConnectedAt: s.clock,
		Prefs:       make(map[string]string),
	}
	s.players.Add(c)

	if !s.callbacks.OnConnect(c) {
		s.players.Remove(slot)
		return false, "Connection rejected."
	}

	if !bot && socialID != "" {
		p, err := s.prefs.Import(socialID)
		if err != nil {
			s.logger.Warn("failed to import player prefs", "id", socialID, "error", err)
		} else {
			c.Prefs = p
		}
	}

	width := s.config.Server.MenuWidth
	if w, err := strconv.Atoi(c.Prefs["menu_width"]); err == nil {
		width = w
	}
	s.sessions[slot] = menu.NewSession(slot, width)

	s.logger.Info("client connected", "slot", slot, "name", name, "bot", bot, "admin", c.Admin)
	return true, ""
}

// ClientBegin runs once the client is in game.
func (s *Server) ClientBegin(slot int) {
	c, ok := s.players.Get(slot)
	if !ok {
		return
	}
	for _, msg := range s.config.Server.WelcomeMessages {
		s.engine.Print(slot, msg)
	}

	if c.Bot || c.Prefs["auto_join"] == "1" {
		want := player.TeamFree
		switch c.Prefs["preferred_team"] {
		case "red":
			want = player.TeamRed
		case "blue":
			want = player.TeamBlue
		}
		s.Join(slot, want, false, false)
	}
	if c.Bot {
		return
	}
	if c.Prefs["ready_on_join"] == "1" && c.Playing() {
		c.Ready = true
	}

	switch {
	case s.selector.Active():
		s.openMapVoteMenu(slot)
	case c.Prefs["show_menu"] != "0":
		s.OpenMainMenu(slot)
	}
}

func (s *Server) ClientDisconnect(slot int) {
	c, ok := s.players.Remove(slot)
	if !ok {
		return
	}

	s.selector.ClearVote(slot)
	s.callvotes.PlayerDisconnected(slot)

	if sess := s.sessions[slot]; sess != nil {
		sess.Close()
		s.sessions[slot] = nil
	}

	s.exportPrefs(c)
	s.callbacks.OnDisconnect(c)
	s.promoteDuel()

	s.logger.Info("client disconnected", "slot", slot, "name", c.Name)
}

func (s *Server) exportPrefs(c *player.Client) {
	if c.Bot || c.SocialID == "" || len(c.Prefs) == 0 {
		return
	}
	if err := s.prefs.Export(c.SocialID, c.Prefs); err != nil {
		s.logger.Warn("failed to export player prefs", "id", c.SocialID, "error", err)
	}
}

// Join moves a client onto a team. TeamFree means "any side" in team
// gametypes; TeamSpectator leaves the game.
func (s *Server) Join(slot int, want player.Team, queue, forced bool) teams.Decision {
	c, ok := s.players.Get(slot)
	if !ok {
		return teams.Deny
	}

	if want == player.TeamSpectator {
		s.setTeam(c, player.TeamSpectator)
		c.QueuedAt = 0
		s.promoteDuel()
		return teams.Allow
	}

	oneVOne := s.info.Has(gametype.FlagOneVOne)
	limit := s.config.Server.MaxPlayers
	if oneVOne {
		limit = s.duelLimit()
	}
	d := teams.Decide(teams.JoinRequest{
		JoinPlaying:   true,
		WantsQueue:    queue && oneVOne,
		Forced:        forced,
		WasPlaying:    c.Playing(),
		OneVOne:       oneVOne,
		Human:         c.Human(),
		PlayingHumans: s.players.PlayingHumans(),
		MaxPlayers:    limit,
	})

	switch {
	case d == teams.Deny:
		s.engine.Print(slot, "The game is full")
		return d
	case d == teams.QueueForDuel, queue && oneVOne && !c.Playing():
		s.enqueueDuel(c)
		s.promoteDuel()
		return teams.QueueForDuel
	}

	s.setTeam(c, s.resolveTeam(c, want))
	return d
}

func (s *Server) resolveTeam(c *player.Client, want player.Team) player.Team {
	if !s.info.Has(gametype.FlagTeams) {
		return player.TeamFree
	}
	if want == player.TeamRed || want == player.TeamBlue {
		return want
	}
	if c.Team == player.TeamRed || c.Team == player.TeamBlue {
		return c.Team
	}
	return teams.PickTeam(
		s.players.TeamCount(player.TeamRed), s.players.TeamCount(player.TeamBlue),
		s.teamScores[0], s.teamScores[1],
	)
}

func (s *Server) setTeam(c *player.Client, team player.Team) {
	if c.Team == team {
		return
	}
	from := c.Team
	c.Team = team
	c.Ready = false
	c.Score = 0
	if team.Playing() {
		c.QueuedAt = 0
		s.respawn(c)
		if s.eliminationRound() {
			// joined mid round: sit out until the next one
			c.Alive = false
			c.Lives = 0
		}
	} else {
		c.Alive = false
	}

	s.engine.Broadcast(fmt.Sprintf("%s joined %s", c.Name, teamLabel(team)))
	s.callbacks.OnTeamChange(c, from, team)
	s.markAllDirty()
}

func teamLabel(t player.Team) string {
	switch t {
	case player.TeamRed:
		return "the red team"
	case player.TeamBlue:
		return "the blue team"
	case player.TeamFree:
		return "the game"
	default:
		return "the spectators"
	}
}

func (s *Server) enqueueDuel(c *player.Client) {
	if c.Queued() {
		return
	}
	c.QueuedAt = max(s.clock, 1)
	pos := len(s.players.DuelQueue())
	s.engine.Print(c.Slot, fmt.Sprintf("You are number %d in the duel queue", pos))
}

// promoteDuel fills free duel spots from the queue, oldest first.
func (s *Server) promoteDuel() {
	if !s.info.Has(gametype.FlagOneVOne) {
		return
	}
	limit := s.duelLimit()
	for _, c := range s.players.DuelQueue() {
		if s.players.PlayingHumans() >= limit {
			return
		}
		s.setTeam(c, player.TeamFree)
	}
}

func (s *Server) duelLimit() int {
	if s.config.Server.MaxPlayers > 0 {
		return min(2, s.config.Server.MaxPlayers)
	}
	return 2
}

// rotateDuel sends the loser of the last duel to the back of the queue when
// someone is waiting.
func (s *Server) rotateDuel() {
	if !s.info.Has(gametype.FlagOneVOne) || len(s.players.DuelQueue()) == 0 {
		return
	}
	res := s.machine.Result()
	if !res.Exited() || res.WinnerSlot < 0 {
		return
	}
	for _, c := range s.players.Playing() {
		if c.Slot == res.WinnerSlot || !c.Human() {
			continue
		}
		s.setTeam(c, player.TeamSpectator)
		s.enqueueDuel(c)
	}
	s.promoteDuel()
}

func (s *Server) SetReady(slot int, ready bool) {
	c, ok := s.players.Get(slot)
	if !ok || !c.Playing() {
		return
	}
	if c.Ready == ready {
		return
	}
	c.Ready = ready
	if ready {
		s.engine.Broadcast(fmt.Sprintf("%s is ready", c.Name))
	} else {
		s.engine.Broadcast(fmt.Sprintf("%s is not ready", c.Name))
	}
	s.markAllDirty()
}

// AddScore credits points to a client. Frag-scored team modes also credit
// the client's team.
func (s *Server) AddScore(slot, points int) {
	c, ok := s.players.Get(slot)
	if !ok || !c.Playing() {
		return
	}
	c.Score += points
	if s.info.Has(gametype.FlagTeams) && s.info.Has(gametype.FlagFrags) {
		if i, ok := c.Team.Index(); ok {
			s.teamScores[i] += points
		}
	}
}

// AddTeamScore credits objective points such as flag captures.
func (s *Server) AddTeamScore(team player.Team, points int) {
	if i, ok := team.Index(); ok {
		s.teamScores[i] += points
	}
}

// PlayerKilled scores a frag and applies elimination rules to the victim.
// attacker is -1 for world kills.
func (s *Server) PlayerKilled(victim, attacker int) {
	v, ok := s.players.Get(victim)
	if !ok {
		return
	}
	switch {
	case attacker == victim || attacker < 0:
		s.AddScore(victim, -1)
	default:
		if a, ok := s.players.Get(attacker); ok && s.info.Has(gametype.FlagTeams) && a.Team == v.Team {
			s.AddScore(attacker, -1)
		} else {
			s.AddScore(attacker, 1)
		}
	}

	v.Alive = false
	if s.info.Has(gametype.FlagLives) && v.Lives > 0 {
		v.Lives--
		if v.Lives == 0 {
			s.engine.Broadcast(fmt.Sprintf("%s is out of lives", v.Name))
		}
	}
}

// WaveCleared reports a cleared horde wave to the match.
func (s *Server) WaveCleared() error {
	if err := s.machine.WaveCleared(s.levelTime); err != nil {
		return err
	}
	s.markAllDirty()
	return nil
}

// PlayerSpawned marks a client alive unless elimination keeps it out.
func (s *Server) PlayerSpawned(slot int) bool {
	c, ok := s.players.Get(slot)
	if !ok || !c.Playing() {
		return false
	}
	if s.machine.State().Playing() {
		if s.info.Has(gametype.FlagLives) && c.Lives <= 0 {
			return false
		}
		if s.eliminationRound() {
			return false
		}
	}
	c.Alive = true
	return true
}

func (s *Server) eliminationRound() bool {
	return s.machine.State().Playing() && s.info.Has(gametype.FlagRounds) && s.info.Has(gametype.FlagElimination)
}

// PlayerDamaged records combat at a position for spawn selection.
func (s *Server) PlayerDamaged(x, y, amount float64) {
	s.heat.Add(x, y, amount, s.levelTime)
}

// PickSpawn returns the index of the spawn point with the least recent
// combat around it.
func (s *Server) PickSpawn(points []heatmap.Point) int {
	return s.heat.Coolest(points, s.heat.Config().CellSize*2, s.levelTime)
}
