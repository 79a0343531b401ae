package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/mappool"
	"github.com/siohaza/q2match/internal/match"
	"github.com/siohaza/q2match/internal/menu"
	"github.com/siohaza/q2match/internal/player"
	"github.com/siohaza/q2match/internal/prefs"
	"github.com/siohaza/q2match/internal/vote"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrUsage            = errors.New("bad arguments")
	ErrCallVoteDisabled = errors.New("voting is disabled on this server")
	ErrCallVoteKind     = errors.New("that vote is not allowed on this server")
	ErrIntermission     = errors.New("the match is over")
)

// ServerCommand runs one console line such as "sv addip 10.0.0.0" or
// "set filterban 0". Output goes to out.
func (s *Server) ServerCommand(out io.Writer, line string) error {
	args := strings.Fields(line)
	if len(args) > 0 && strings.EqualFold(args[0], "sv") {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil
	}

	cmd := strings.ToLower(args[0])
	args = args[1:]

	err := s.serverCommand(out, cmd, args)
	if err != nil {
		s.logger.Warn("server command failed", "command", cmd, "error", err)
		fmt.Fprintf(out, "%s: %v\n", cmd, err)
	}
	return err
}

func (s *Server) serverCommand(out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "addip":
		if len(args) != 1 {
			return fmt.Errorf("%w: addip <ip-mask>", ErrUsage)
		}
		added, err := s.filter.Add(args[0])
		if err != nil {
			return err
		}
		if !added {
			fmt.Fprintf(out, "%s is already filtered\n", args[0])
		}
		return nil

	case "removeip":
		if len(args) != 1 {
			return fmt.Errorf("%w: removeip <ip-mask>", ErrUsage)
		}
		if !s.filter.Remove(args[0]) {
			fmt.Fprintf(out, "Didn't find %s\n", args[0])
			return nil
		}
		fmt.Fprintf(out, "Removed %s\n", args[0])
		return nil

	case "listip":
		s.listIP(out)
		return nil

	case "writeip":
		return s.writeIP(out)

	case "set":
		if len(args) != 2 || !strings.EqualFold(args[0], "filterban") {
			return fmt.Errorf("%w: set filterban <0|1>", ErrUsage)
		}
		s.filter.SetBan(args[1] != "0")
		return nil

	case "nextmap":
		if len(args) == 0 {
			next := s.machine.NextMap()
			if next == "" {
				next = "(not decided)"
			}
			fmt.Fprintf(out, "Next map: %s\n", next)
			return nil
		}
		e, ok := s.pool.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", mappool.ErrUnknownMap, args[0])
		}
		s.machine.SetNextMap(e.Filename)
		fmt.Fprintf(out, "Next map set to %s\n", e.Filename)
		return nil

	case "map":
		if len(args) != 1 {
			return fmt.Errorf("%w: map <name>", ErrUsage)
		}
		e, ok := s.pool.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", mappool.ErrUnknownMap, args[0])
		}
		s.ChangeMap(e.Filename)
		return nil

	case "reloadmaps":
		n, err := s.ReloadMaps()
		if err != nil {
			return fmt.Errorf("failed to reload maps: %w", err)
		}
		fmt.Fprintf(out, "%d maps loaded\n", n)
		return nil

	case "maplist":
		s.mapList(out)
		return nil

	case "status":
		s.status(out)
		return nil

	case "history":
		n := 10
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("%w: history [count]", ErrUsage)
			}
			n = v
		}
		return s.playHistory(out, n)

	case "gametype":
		if len(args) != 1 {
			fmt.Fprintf(out, "Gametype: %s (%s)\n", s.info.Name, s.info.ShortName)
			return nil
		}
		gt, ok := gametype.ParseName(args[0])
		if !ok {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("unknown gametype %q", args[0])
			}
			s.SetGametypeValue(v)
		} else {
			s.SetGametypeValue(int(gt))
		}
		fmt.Fprintf(out, "Gametype %s takes effect on the next map\n", gametype.Normalize(s.gametypeValue))
		return nil

	case "forcestart":
		return s.machine.ForceStart(s.levelTime)
	case "endmatch":
		return s.machine.ForceEnd(s.levelTime)
	case "restart":
		s.machine.Restart(s.levelTime)
		return nil

	case "kick":
		if len(args) < 1 {
			return fmt.Errorf("%w: kick <slot> [reason]", ErrUsage)
		}
		slot, err := strconv.Atoi(args[0])
		if err != nil || !s.players.Connected(slot) {
			return fmt.Errorf("no client in slot %s", args[0])
		}
		reason := "Kicked by the server"
		if len(args) > 1 {
			reason = strings.Join(args[1:], " ")
		}
		s.engine.Kick(slot, reason)
		return nil

	case "addadmin", "removeadmin", "ban", "unban":
		return s.idListCommand(out, cmd, args)
	}

	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

func (s *Server) idListCommand(out io.Writer, cmd string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s <id>", ErrUsage, cmd)
	}
	id := args[0]

	var (
		changed bool
		err     error
	)
	switch cmd {
	case "addadmin":
		changed, err = s.admins.Add(id)
	case "removeadmin":
		changed, err = s.admins.Remove(id)
	case "ban":
		changed, err = s.banned.Add(id)
	case "unban":
		changed, err = s.banned.Remove(id)
	}
	if err != nil {
		return fmt.Errorf("failed to update id list: %w", err)
	}
	if !changed {
		fmt.Fprintf(out, "%s: nothing to do for %s\n", cmd, id)
		return nil
	}

	for _, c := range s.players.Humans() {
		if c.SocialID != id {
			continue
		}
		switch cmd {
		case "addadmin":
			c.Admin = true
		case "removeadmin":
			c.Admin = false
		case "ban":
			s.engine.Kick(c.Slot, "You are banned from this server.")
		}
	}
	fmt.Fprintf(out, "%s %s\n", cmd, id)
	return nil
}

func (s *Server) listIP(out io.Writer) {
	mode := "ban"
	if !s.filter.Ban() {
		mode = "allow"
	}
	fmt.Fprintf(out, "Filter mode: %s, %d of %d entries\n", mode, s.filter.Len(), s.config.Filter.MaxFilters)

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"#", "Filter"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for i, f := range s.filter.Filters() {
		tw.Append([]string{strconv.Itoa(i + 1), f.String()})
	}
	tw.Render()
}

// writeIP saves the filter list so ExecFile can restore it.
func (s *Server) writeIP(out io.Writer) error {
	path := s.config.Filter.File
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create filter directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to write filters: %w", err)
	}
	if err := s.filter.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write filters: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write filters: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write filters: %w", err)
	}

	fmt.Fprintf(out, "Wrote %d filters to %s\n", s.filter.Len(), path)
	return nil
}

func (s *Server) mapList(out io.Writer) {
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Map", "Title", "Gametypes", "Players", "Popularity", "Cycle"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for _, e := range s.pool.Entries() {
		players := "any"
		if e.MinPlayers > 0 || e.MaxPlayers > 0 {
			players = fmt.Sprintf("%d-%d", e.MinPlayers, e.MaxPlayers)
		}
		cycle := ""
		if e.Cycleable {
			cycle = "yes"
		}
		tw.Append([]string{e.Filename, e.LongName, gametypeList(e.GameTypes), players, strconv.Itoa(e.Popularity), cycle})
	}
	tw.Render()
	fmt.Fprintf(out, "%d maps, %d queued\n", s.pool.Len(), s.pool.Queue().Len())
}

func gametypeList(mask gametype.Mask) string {
	var names []string
	for _, info := range gametype.All() {
		if mask.Allows(info.Type) {
			names = append(names, info.ShortName)
		}
	}
	if len(names) == len(gametype.All()) {
		return "all"
	}
	return strings.Join(names, ",")
}

func (s *Server) status(out io.Writer) {
	fmt.Fprintf(out, "%s on %s, %s\n", s.info.Name, s.mapName, s.machine.State())
	if s.info.Has(gametype.FlagTeams) {
		fmt.Fprintf(out, "Red %d, Blue %d\n", s.teamScores[0], s.teamScores[1])
	}

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Slot", "Name", "Team", "Score", "Ready", "IP"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for _, c := range s.players.All() {
		ready := ""
		if c.Ready {
			ready = "yes"
		}
		ip := c.IP
		if c.Bot {
			ip = "bot"
		}
		tw.Append([]string{strconv.Itoa(c.Slot), c.Name, c.Team.String(), strconv.Itoa(c.Score), ready, ip})
	}
	tw.Render()
}

func (s *Server) playHistory(out io.Writer, n int) error {
	if s.history == nil {
		fmt.Fprintln(out, "Map history is disabled")
		return nil
	}
	plays, err := s.history.Recent(n)
	if err != nil {
		return fmt.Errorf("failed to read map history: %w", err)
	}

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Played", "Map", "Gametype", "Players", "Exit", "Winner"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for _, p := range plays {
		tw.Append([]string{
			p.PlayedAt.Format("2006-01-02 15:04"),
			p.Map,
			p.GameType,
			strconv.Itoa(p.Players),
			p.Exit,
			p.Winner,
		})
	}
	tw.Render()
	return nil
}

// ExecFile runs every line of a console script. Lines that fail are logged
// and skipped.
func (s *Server) ExecFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.ServerCommand(io.Discard, line); err == nil {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	s.logger.Info("executed config file", "path", path, "commands", n)
	return nil
}

// ClientCommand handles a command typed by a client. It returns false when
// the command is not one of ours and the engine should handle it.
func (s *Server) ClientCommand(slot int, args []string) bool {
	c, ok := s.players.Get(slot)
	if !ok || len(args) == 0 {
		return false
	}

	cmd := strings.ToLower(args[0])
	args = args[1:]

	switch cmd {
	case "menu", "inven":
		if sess, ok := s.session(slot); ok && sess.State() == menu.Open {
			sess.Close()
		} else {
			s.OpenMainMenu(slot)
		}
	case "invnext":
		s.MenuNext(slot)
	case "invprev":
		s.MenuPrev(slot)
	case "invuse":
		s.MenuSelect(slot)

	case "ready":
		s.SetReady(slot, true)
	case "notready":
		s.SetReady(slot, false)

	case "team", "join":
		want := player.TeamFree
		if len(args) > 0 {
			switch strings.ToLower(args[0]) {
			case "red", "r":
				want = player.TeamRed
			case "blue", "b":
				want = player.TeamBlue
			case "spectator", "spec", "s":
				want = player.TeamSpectator
			}
		}
		s.Join(slot, want, false, false)
	case "spectate", "observe":
		s.Join(slot, player.TeamSpectator, false, false)
	case "queue":
		s.Join(slot, player.TeamFree, true, false)

	case "vote":
		s.voteCommand(slot, args)

	case "callvote", "cv":
		if len(args) == 0 {
			s.engine.Print(slot, "usage: callvote <"+strings.Join(s.config.Voting.AllowedCallvotes, "|")+"> [arg]")
			break
		}
		kind, ok := vote.ParseKind(args[0])
		if !ok {
			s.engine.Print(slot, fmt.Sprintf("Unknown vote %q", args[0]))
			break
		}
		s.callVoteAndReport(slot, kind, strings.Join(args[1:], " "))

	case "mymap":
		if len(args) != 1 {
			s.engine.Print(slot, "usage: mymap <map>")
			break
		}
		s.myMap(c, args[0])

	case "timeout":
		if !c.Playing() {
			s.engine.Print(slot, "Only players can call a timeout")
			break
		}
		s.reportErr(slot, s.machine.Pause(s.levelTime, c.Name, 0))
	case "timein":
		if !c.Playing() && !c.Admin {
			break
		}
		s.reportErr(slot, s.machine.Resume(s.levelTime))

	case "admin":
		if !s.OpenAdminMenu(slot) {
			s.engine.Print(slot, "You are not an admin")
		}

	case "pref", "prefs":
		s.prefCommand(c, args)

	default:
		return false
	}

	s.markAllDirty()
	return true
}

func (s *Server) voteCommand(slot int, args []string) {
	if len(args) != 1 {
		s.engine.Print(slot, "usage: vote <number|yes|no>")
		return
	}
	switch strings.ToLower(args[0]) {
	case "yes", "y":
		s.reportErr(slot, s.callvotes.Cast(slot, true))
		return
	case "no", "n":
		s.reportErr(slot, s.callvotes.Cast(slot, false))
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		s.engine.Print(slot, "usage: vote <number|yes|no>")
		return
	}
	s.reportErr(slot, s.selector.CastVote(slot, n-1))
}

func (s *Server) myMap(c *player.Client, name string) {
	e, ok := s.pool.Lookup(name)
	if ok && !e.Supports(s.gametype) {
		s.engine.Print(c.Slot, fmt.Sprintf("%s does not support %s", e.Filename, s.info.Name))
		return
	}
	err := s.pool.Enqueue(mappool.Request{
		Map:      name,
		Slot:     c.Slot,
		SocialID: c.SocialID,
		Name:     c.Name,
		At:       s.clock,
	})
	if err != nil {
		s.engine.Print(c.Slot, err.Error())
		return
	}
	s.engine.Broadcast(fmt.Sprintf("%s queued %s", c.Name, e.Filename))
}

func (s *Server) prefCommand(c *player.Client, args []string) {
	switch len(args) {
	case 0:
		for _, k := range prefs.Keys() {
			v, ok := c.Prefs[k]
			if !ok {
				v = "(unset)"
			}
			s.engine.Print(c.Slot, fmt.Sprintf("%s %s", k, v))
		}
	case 2:
		if err := prefs.Validate(args[0], args[1]); err != nil {
			s.engine.Print(c.Slot, err.Error())
			return
		}
		c.Prefs[args[0]] = args[1]
		if args[0] == "menu_width" {
			if w, err := strconv.Atoi(args[1]); err == nil {
				if sess, ok := s.session(c.Slot); ok {
					sess.Width = w
				}
			}
		}
	default:
		s.engine.Print(c.Slot, "usage: pref [key value]")
	}
}

// CallVote starts a call vote for slot. arg is a map name for map votes
// and a slot number for kick votes.
func (s *Server) CallVote(slot int, kind vote.Kind, arg string) error {
	c, ok := s.players.Get(slot)
	if !ok || c.Bot {
		return vote.ErrCannotVote
	}
	if !s.config.Voting.CallvoteEnabled {
		return ErrCallVoteDisabled
	}
	if !s.callVoteAllowed(kind) {
		return ErrCallVoteKind
	}
	if s.machine.State() == match.StateIntermission {
		return ErrIntermission
	}

	v := vote.NewCallVote(kind, slot, c.Name, nil)
	switch kind {
	case vote.KindRestart:
		v.OnPass = func() { s.machine.Restart(s.levelTime) }

	case vote.KindTimeout:
		if s.machine.State() != match.StateInProgress {
			return match.ErrNotInProgress
		}
		v.OnPass = func() { s.reportErr(slot, s.machine.Pause(s.levelTime, "Vote", 0)) }

	case vote.KindNextMap:
		v.OnPass = s.endLevel

	case vote.KindMap:
		e, ok := s.pool.Lookup(arg)
		if !ok || !e.Cycleable || !e.Supports(s.gametype) {
			return fmt.Errorf("%w: %s", mappool.ErrUnknownMap, arg)
		}
		if strings.EqualFold(e.Filename, s.mapName) {
			return fmt.Errorf("%s is already being played", e.Filename)
		}
		name := e.Filename
		v.Arg = name
		v.OnPass = func() {
			if !s.machine.State().Playing() {
				s.ChangeMap(name)
				return
			}
			s.machine.SetNextMap(name)
			s.endLevel()
		}

	case vote.KindKick:
		target, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%w: callvote kick <slot>", ErrUsage)
		}
		t, ok := s.players.Get(target)
		if !ok || target == slot {
			return fmt.Errorf("no client in slot %s", arg)
		}
		if t.Admin {
			return fmt.Errorf("%s cannot be kicked", t.Name)
		}
		v.Target = target
		v.TargetName = t.Name
		v.OnPass = func() { s.engine.Kick(target, "Kicked by vote") }
	}

	return s.callvotes.Start(s.clock, v)
}

// endLevel ends the match when one is running, otherwise moves straight to
// the next map.
func (s *Server) endLevel() {
	if s.machine.State().Playing() {
		if err := s.machine.ForceEnd(s.levelTime); err != nil {
			s.logger.Warn("failed to end match", "error", err)
		}
		return
	}

	next := s.machine.NextMap()
	if next == "" {
		if name, ok := s.PopQueuedMap(); ok {
			next = name
		} else if name, ok := s.AutoSelectMap(); ok {
			next = name
		}
	}
	if next == "" {
		s.engine.Broadcast("No map available")
		return
	}
	s.ChangeMap(next)
}
