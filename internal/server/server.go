package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/siohaza/q2match/internal/callbacks"
	"github.com/siohaza/q2match/internal/filter"
	"github.com/siohaza/q2match/internal/gamemode"
	"github.com/siohaza/q2match/internal/gametype"
	"github.com/siohaza/q2match/internal/heatmap"
	"github.com/siohaza/q2match/internal/history"
	"github.com/siohaza/q2match/internal/idlist"
	"github.com/siohaza/q2match/internal/mappool"
	"github.com/siohaza/q2match/internal/match"
	"github.com/siohaza/q2match/internal/menu"
	"github.com/siohaza/q2match/internal/player"
	"github.com/siohaza/q2match/internal/prefs"
	"github.com/siohaza/q2match/internal/vote"
	"github.com/siohaza/q2match/pkg/config"
)

var ErrNoMaps = errors.New("no maps available")

// Engine is the host game engine. The server never touches the network or
// the world directly.
type Engine interface {
	LoadMap(name string)
	Broadcast(msg string)
	Print(slot int, msg string)
	SetLayout(slot int, layout []byte)
	Kick(slot int, reason string)
}

// Server is the game context: configuration plus all mutable match state.
// Every method must be called from the goroutine driving Frame.
type Server struct {
	config    *config.Config
	engine    Engine
	logger    *slog.Logger
	callbacks *callbacks.CallbackChain

	players   *player.Manager
	sessions  []*menu.Session
	pool      *mappool.Pool
	picker    *vote.Picker
	selector  *vote.Selector
	callvotes *vote.Manager
	machine   *match.Machine
	filter    *filter.List
	admins    *idlist.List
	banned    *idlist.List
	prefs     *prefs.Store
	history   *history.DB
	heat      *heatmap.Map

	// raw gametype value as configured; normalized into gametype on use
	gametypeValue int
	gametype      gametype.GameType
	info          gametype.Info

	mapName     string
	pendingMap  string
	recent      []string
	levelTime   time.Duration
	clock       time.Duration
	lastPrune   time.Duration
	lastRefresh time.Duration
	teamScores  [2]int
}

func New(cfg *config.Config, engine Engine, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	seed := cfg.Maps.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	srv := &Server{
		config:    cfg,
		engine:    engine,
		logger:    logger,
		callbacks: callbacks.NewCallbackChain(),
		players:   player.NewManager(cfg.Server.MaxClients),
		sessions:  make([]*menu.Session, cfg.Server.MaxClients),
		pool:      mappool.NewPool(logger),
		picker:    vote.NewPicker(seed),
		filter:    filter.NewList(cfg.Filter.MaxFilters),
		admins:    idlist.New(cfg.Admin.AdminList, logger),
		banned:    idlist.New(cfg.Admin.BanList, logger),
		prefs:     prefs.NewStore(cfg.Admin.PrefsDir, logger),
		heat: heatmap.New(heatmap.Config{
			CellSize:  cfg.Heatmap.CellSize,
			DecayRate: cfg.Heatmap.DecayRate,
			MinHeat:   cfg.Heatmap.MinHeat,
		}),
	}
	srv.pool.Queue().SetLimit(cfg.Maps.QueueLimit)
	srv.filter.SetBan(cfg.Filter.Ban)

	srv.selector = vote.NewSelector(srv.pool, srv.picker, srv.players, vote.SelectorConfig{
		MaxClients: cfg.Server.MaxClients,
		Duration:   time.Duration(cfg.Voting.MapVoteTime) * time.Second,
		OnBegin:    srv.openMapVoteMenus,
		OnVote:     func(int) { srv.markMapVoteDirty() },
		OnFinish:   srv.mapVoteFinished,
		OnUpdate:   engine.Broadcast,
	})

	srv.callvotes = vote.NewManager(vote.ManagerConfig{
		Percentage: cfg.Voting.CallvotePercentage,
		Timeout:    time.Duration(cfg.Voting.CallvoteTimeout) * time.Second,
		Cooldown:   time.Duration(cfg.Voting.CallvoteCooldown) * time.Second,
		Voters:     srv.players,
		OnUpdate:   engine.Broadcast,
		OnResult: func(v *vote.CallVote, passed bool) {
			srv.callbacks.OnVoteResult(v.Description(), passed)
			srv.markAllDirty()
		},
	})

	if cfg.Maps.HistoryDB != "" {
		db, err := history.Open(cfg.Maps.HistoryDB, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open map history: %w", err)
		}
		srv.history = db
		srv.RegisterCallbacks(&historyRecorder{server: srv})
	}

	srv.gametypeValue = int(cfg.GameType())
	srv.setGametype(srv.gametypeValue)
	srv.newMachine()

	return srv, nil
}

// Start loads the map pool, filters and id lists, then brings up the first
// level.
func (s *Server) Start() error {
	if _, err := s.ReloadMaps(); err != nil {
		s.logger.Warn("failed to load map database", "error", err)
	}

	if err := s.ExecFile(s.config.Filter.File); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to load ip filters", "error", err)
	}
	if err := s.admins.Load(); err != nil {
		s.logger.Warn("failed to load admin list", "error", err)
	}
	if err := s.banned.Load(); err != nil {
		s.logger.Warn("failed to load ban list", "error", err)
	}

	if s.history != nil && s.config.Maps.ExcludeRecent > 0 {
		recent, err := s.history.RecentMaps(s.config.Maps.ExcludeRecent)
		if err != nil {
			s.logger.Warn("failed to read map history", "error", err)
		}
		s.recent = recent
	}

	name := s.config.Server.StartMap
	if name == "" {
		var ok bool
		if name, ok = s.AutoSelectMap(); !ok {
			return fmt.Errorf("failed to pick a start map: %w", ErrNoMaps)
		}
	}
	s.changeLevel(name)

	s.logger.Info("server started", "name", s.config.Server.Name, "gametype", s.info.ShortName, "map", s.mapName)
	return nil
}

// Run drives frames until ctx is cancelled. Jobs from other goroutines are
// run at the top of each frame, before match evaluation.
func (s *Server) Run(ctx context.Context, jobs <-chan func()) error {
	interval := s.config.FrameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("server context cancelled, exiting run loop")
			return ctx.Err()

		case <-ticker.C:
			s.drain(jobs)
			s.Frame(interval)
		}
	}
}

func (s *Server) drain(jobs <-chan func()) {
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			job()
		default:
			return
		}
	}
}

func (s *Server) Stop() {
	s.logger.Info("stopping server")

	for _, c := range s.players.Humans() {
		s.exportPrefs(c)
	}

	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Warn("failed to close map history", "error", err)
		}
	}

	s.logger.Info("server stopped")
}

func (s *Server) RegisterCallbacks(cb callbacks.Callbacks) {
	s.callbacks.Register(cb)
}

// Frame advances level time by dt and runs one tick: votes, then the match,
// then any map change, then menu output.
func (s *Server) Frame(dt time.Duration) {
	s.levelTime += dt
	s.clock += dt
	now := s.levelTime

	s.selector.Tick(now)
	if s.machine.State() != match.StateIntermission {
		s.callvotes.Tick(s.clock)
	}

	s.machine.Tick(now, s.snapshot())

	if s.pendingMap != "" {
		s.changeLevel(s.pendingMap)
	}

	interval := time.Duration(s.config.Heatmap.PruneInterval) * time.Second
	if s.levelTime-s.lastPrune >= interval {
		s.lastPrune = s.levelTime
		if n := s.heat.Prune(s.levelTime); n > 0 {
			s.logger.Debug("heatmap pruned", "cells", n)
		}
	}

	if s.selector.Active() && s.levelTime-s.lastRefresh >= time.Second {
		s.lastRefresh = s.levelTime
		s.markMapVoteDirty()
	}

	s.flushMenus()
}

func (s *Server) snapshot() match.Snapshot {
	snap := match.Snapshot{
		PlayingHumans: s.players.PlayingHumans(),
		ReadyHumans:   s.players.ReadyHumans(),
		TeamScores:    s.teamScores,
	}
	for _, c := range s.players.Playing() {
		snap.Players = append(snap.Players, gamemode.Standing{
			Slot:  c.Slot,
			Team:  c.Team,
			Score: c.Score,
			Alive: c.Alive,
			Lives: c.Lives,
		})
	}
	return snap
}

func (s *Server) setGametype(v int) {
	s.gametype = gametype.Normalize(v)
	s.info = gametype.GetInfo(s.gametype)
}

// IsCurrentTypeValid reports whether the configured gametype value needed
// no normalization.
func (s *Server) IsCurrentTypeValid() bool {
	return gametype.IsValid(s.gametypeValue)
}

// SetGametypeValue stores a raw gametype value. It takes effect on the next
// level.
func (s *Server) SetGametypeValue(v int) {
	s.gametypeValue = v
}

func (s *Server) ruleset() gamemode.Ruleset {
	builtin := gamemode.For(s.info)
	script := s.config.Server.GamemodeScript
	if script == "" {
		return builtin
	}
	rules, err := gamemode.NewLuaRuleset(script, builtin, s.logger)
	if err != nil {
		s.logger.Warn("failed to load gamemode script, using built-in rules", "path", script, "error", err)
		return builtin
	}
	return rules
}

func (s *Server) newMachine() {
	limits := s.config.Limits(s.info)
	s.machine = match.New(match.Config{
		Warmup:           s.config.Match.Warmup,
		MinPlayers:       s.config.Match.MinPlayers,
		CountdownTime:    s.config.Match.Countdown(),
		GraceTime:        s.config.Match.Grace(),
		IntermissionTime: s.config.Match.Intermission(),
		TimeoutLength:    s.config.Match.Timeout(),
		MapVote:          s.config.Match.MapVote,
	}, s.info, match.Limits{
		ScoreLimit:   limits.ScoreLimit,
		TimeLimit:    limits.TimeLimit,
		RoundLimit:   limits.RoundLimit,
		ReadyPercent: limits.ReadyPercent,
	}, s.ruleset(), s, s.logger)
}

func (s *Server) changeLevel(name string) {
	s.pendingMap = ""
	if e, ok := s.pool.Lookup(name); ok {
		name = e.Filename
	}

	if s.selector.Active() {
		s.selector.Finalize()
	}
	s.callvotes.Cancel("Vote cancelled, map changed")

	if _, err := s.ReloadMaps(); err != nil {
		s.logger.Warn("failed to reload map database", "error", err)
	}

	s.mapName = name
	s.rememberMap(name)
	s.levelTime = 0
	s.lastPrune = 0
	s.lastRefresh = 0
	s.heat.Clear()

	s.setGametype(s.gametypeValue)
	s.rotateDuel()
	s.resetScores()
	s.players.ResetReady()
	s.newMachine()

	for _, sess := range s.sessions {
		if sess != nil {
			sess.Close()
		}
	}

	s.engine.LoadMap(name)
	s.callbacks.OnMapChange(name)
	s.logger.Info("map changed", "map", name, "gametype", s.info.ShortName)
}

func (s *Server) rememberMap(name string) {
	keep := s.config.Maps.ExcludeRecent
	if keep <= 0 {
		s.recent = nil
		return
	}
	s.recent = append([]string{name}, s.recent...)
	if len(s.recent) > keep {
		s.recent = s.recent[:keep]
	}
}

func (s *Server) resetScores() {
	s.players.ResetScores()
	s.teamScores = [2]int{}
	for _, c := range s.players.Playing() {
		s.respawn(c)
	}
}

func (s *Server) respawn(c *player.Client) {
	c.Alive = true
	if s.info.Has(gametype.FlagLives) {
		c.Lives = s.config.Match.Lives
	}
}

// ReloadMaps re-reads the map database and cycle file. Queued requests for
// maps that disappeared are dropped and their owners told.
func (s *Server) ReloadMaps() (int, error) {
	dropped, err := s.pool.Load(s.config.Maps.Database)
	if err != nil {
		return 0, err
	}
	for _, r := range dropped {
		if s.players.Connected(r.Slot) {
			s.engine.Print(r.Slot, fmt.Sprintf("Your queued map %s is no longer available", r.Map))
		}
	}

	matched, unmatched, err := s.pool.LoadCycle(s.modDir(), s.config.Server.BaseDir, s.config.Maps.Cycle)
	if err != nil {
		s.logger.Warn("failed to load map cycle", "error", err)
	} else if unmatched > 0 {
		s.logger.Warn("map cycle has unknown maps", "matched", matched, "unmatched", unmatched)
	}
	return s.pool.Len(), nil
}

func (s *Server) modDir() string {
	if s.config.Server.ModDir == "" {
		return ""
	}
	return filepath.Clean(s.config.Server.ModDir)
}

func (s *Server) criteria() vote.Criteria {
	exclude := make([]string, 0, len(s.recent)+1)
	if s.mapName != "" {
		exclude = append(exclude, s.mapName)
	}
	exclude = append(exclude, s.recent...)
	return vote.Criteria{
		GameType: s.gametype,
		Players:  len(s.players.Humans()),
		Exclude:  exclude,
	}
}

func (s *Server) MapName() string            { return s.mapName }
func (s *Server) GameType() gametype.GameType { return s.gametype }
func (s *Server) Match() *match.Machine       { return s.machine }
func (s *Server) Players() *player.Manager    { return s.players }
func (s *Server) Pool() *mappool.Pool         { return s.pool }
func (s *Server) Filter() *filter.List        { return s.filter }
func (s *Server) Selector() *vote.Selector    { return s.selector }
func (s *Server) CallVotes() *vote.Manager    { return s.callvotes }
func (s *Server) LevelTime() time.Duration    { return s.levelTime }
func (s *Server) TeamScores() [2]int          { return s.teamScores }
