package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/siohaza/q2match/internal/gametype"
)

type Config struct {
	Server    ServerConfig
	Match     MatchConfig
	Voting    VotingConfig
	Maps      MapsConfig
	Filter    FilterConfig
	Admin     AdminConfig
	Heatmap   HeatmapConfig
	Gametypes map[string]*GametypeOverride `toml:"gametypes"`
}

type ServerConfig struct {
	Name            string   `toml:"name"`
	Gametype        string   `toml:"gametype"`
	MaxClients      int      `toml:"max_clients"`
	MaxPlayers      int      `toml:"max_players"`
	FrameRate       int      `toml:"frame_rate"`
	ModDir          string   `toml:"mod_dir"`
	BaseDir         string   `toml:"base_dir"`
	StartMap        string   `toml:"start_map"`
	WelcomeMessages []string `toml:"welcome_messages"`
	MenuWidth       int      `toml:"menu_width"`

	// lua script overriding the built-in exit rules
	GamemodeScript string `toml:"gamemode_script"`

	// logging configuration
	LogToFile bool `toml:"log_to_file"`
}

type MatchConfig struct {
	Warmup           bool    `toml:"warmup"`
	MinPlayers       int     `toml:"min_players"`
	CountdownTime    int     `toml:"countdown_time"`
	GraceTime        float64 `toml:"grace_time"`
	IntermissionTime int     `toml:"intermission_time"`
	TimeoutLength    int     `toml:"timeout_length"`
	MapVote          bool    `toml:"map_vote"`
	Lives            int     `toml:"lives"`
}

type VotingConfig struct {
	MapVoteTime        int      `toml:"map_vote_time"`
	CallvoteEnabled    bool     `toml:"callvote_enabled"`
	CallvotePercentage int      `toml:"callvote_percentage"`
	CallvoteTimeout    int      `toml:"callvote_timeout"`
	CallvoteCooldown   int      `toml:"callvote_cooldown"`
	AllowedCallvotes   []string `toml:"allowed_callvotes"`
}

type MapsConfig struct {
	Database      string `toml:"database"`
	Cycle         string `toml:"cycle"`
	QueueLimit    int    `toml:"queue_limit"`
	HistoryDB     string `toml:"history_db"`
	ExcludeRecent int    `toml:"exclude_recent"`
	Seed          int64  `toml:"seed"`
}

type FilterConfig struct {
	File       string `toml:"file"`
	Ban        bool   `toml:"filterban"`
	MaxFilters int    `toml:"max_filters"`
}

type AdminConfig struct {
	AdminList string `toml:"admin_list"`
	BanList   string `toml:"ban_list"`
	PrefsDir  string `toml:"prefs_dir"`
}

type HeatmapConfig struct {
	CellSize      float64 `toml:"cell_size"`
	DecayRate     float64 `toml:"decay_rate"`
	MinHeat       float64 `toml:"min_heat"`
	PruneInterval int     `toml:"prune_interval"`
}

// GametypeOverride replaces individual gametype defaults. Nil fields keep
// the built-in value.
type GametypeOverride struct {
	ScoreLimit   *int     `toml:"score_limit"`
	TimeLimit    *int     `toml:"time_limit"`
	RoundLimit   *int     `toml:"round_limit"`
	ReadyPercent *float64 `toml:"ready_percent"`
}

// GametypeLimits are the effective end conditions for one gametype.
type GametypeLimits struct {
	ScoreLimit   int
	TimeLimit    time.Duration
	RoundLimit   int
	ReadyPercent float64
}

// Default is the configuration used for keys a file leaves out. Booleans
// that default to true have to be set here, before unmarshalling.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "q2match server",
			Gametype: "ffa",
		},
		Match: MatchConfig{
			Warmup:  true,
			MapVote: true,
		},
		Voting: VotingConfig{
			CallvoteEnabled: true,
		},
		Filter: FilterConfig{
			Ban: true,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.MaxClients == 0 {
		c.Server.MaxClients = 16
	}
	if c.Server.MaxPlayers == 0 {
		c.Server.MaxPlayers = c.Server.MaxClients
	}
	if c.Server.FrameRate == 0 {
		c.Server.FrameRate = 10
	}
	if c.Server.BaseDir == "" {
		c.Server.BaseDir = "baseq2"
	}
	if c.Server.MenuWidth == 0 {
		c.Server.MenuWidth = 32
	}

	// match defaults
	if c.Match.MinPlayers == 0 {
		c.Match.MinPlayers = 1
	}
	if c.Match.CountdownTime == 0 {
		c.Match.CountdownTime = 10
	}
	if c.Match.GraceTime == 0 {
		c.Match.GraceTime = 1
	}
	if c.Match.IntermissionTime == 0 {
		c.Match.IntermissionTime = 5
	}
	if c.Match.TimeoutLength == 0 {
		c.Match.TimeoutLength = 120
	}
	if c.Match.Lives == 0 {
		c.Match.Lives = 4
	}

	// voting defaults
	if c.Voting.MapVoteTime == 0 {
		c.Voting.MapVoteTime = 20
	}
	if c.Voting.CallvotePercentage == 0 {
		c.Voting.CallvotePercentage = 50
	}
	if c.Voting.CallvoteTimeout == 0 {
		c.Voting.CallvoteTimeout = 30
	}
	if c.Voting.CallvoteCooldown == 0 {
		c.Voting.CallvoteCooldown = 60
	}
	if len(c.Voting.AllowedCallvotes) == 0 {
		c.Voting.AllowedCallvotes = []string{"restart", "timeout", "nextmap", "map", "kick"}
	}

	// map defaults
	if c.Maps.Database == "" {
		c.Maps.Database = "mapdb.json"
	}
	if c.Maps.Cycle == "" {
		c.Maps.Cycle = "mapcycle.txt"
	}
	if c.Maps.QueueLimit == 0 {
		c.Maps.QueueLimit = 8
	}

	if c.Filter.File == "" {
		c.Filter.File = "listip.cfg"
	}
	if c.Filter.MaxFilters == 0 {
		c.Filter.MaxFilters = 1024
	}

	if c.Admin.AdminList == "" {
		c.Admin.AdminList = "admins.txt"
	}
	if c.Admin.BanList == "" {
		c.Admin.BanList = "bans.txt"
	}
	if c.Admin.PrefsDir == "" {
		c.Admin.PrefsDir = "prefs"
	}

	// heatmap defaults
	if c.Heatmap.CellSize == 0 {
		c.Heatmap.CellSize = 128
	}
	if c.Heatmap.DecayRate == 0 {
		c.Heatmap.DecayRate = 2
	}
	if c.Heatmap.MinHeat == 0 {
		c.Heatmap.MinHeat = 1
	}
	if c.Heatmap.PruneInterval == 0 {
		c.Heatmap.PruneInterval = 5
	}

	if len(c.Gametypes) > 0 {
		overrides := make(map[string]*GametypeOverride, len(c.Gametypes))
		for name, o := range c.Gametypes {
			overrides[strings.ToLower(strings.TrimSpace(name))] = o
		}
		c.Gametypes = overrides
	}
}

// GameType resolves server.gametype, falling back to FFA.
func (c *Config) GameType() gametype.GameType {
	if t, ok := gametype.ParseName(c.Server.Gametype); ok {
		return t
	}
	return gametype.FFA
}

// Limits applies the [gametypes.<name>] override for info on top of its
// built-in defaults.
func (c *Config) Limits(info gametype.Info) GametypeLimits {
	limits := GametypeLimits{
		ScoreLimit:   info.ScoreLimit,
		TimeLimit:    info.TimeLimit,
		RoundLimit:   info.RoundLimit,
		ReadyPercent: info.ReadyUpPercentile,
	}

	o := c.Gametypes[info.ShortName]
	if o == nil {
		return limits
	}
	if o.ScoreLimit != nil {
		limits.ScoreLimit = max(*o.ScoreLimit, 0)
	}
	if o.TimeLimit != nil {
		limits.TimeLimit = time.Duration(max(*o.TimeLimit, 0)) * time.Minute
	}
	if o.RoundLimit != nil {
		limits.RoundLimit = max(*o.RoundLimit, 0)
	}
	if o.ReadyPercent != nil {
		limits.ReadyPercent = *o.ReadyPercent
	}
	return limits
}

func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(max(c.Server.FrameRate, 1))
}

func (m MatchConfig) Countdown() time.Duration {
	return time.Duration(m.CountdownTime) * time.Second
}

func (m MatchConfig) Grace() time.Duration {
	return time.Duration(m.GraceTime * float64(time.Second))
}

func (m MatchConfig) Intermission() time.Duration {
	return time.Duration(m.IntermissionTime) * time.Second
}

func (m MatchConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutLength) * time.Second
}

func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}

	if c.Server.MaxClients <= 0 || c.Server.MaxClients > 256 {
		return fmt.Errorf("max_clients must be between 1 and 256")
	}

	if c.Server.MaxPlayers < 0 || c.Server.MaxPlayers > c.Server.MaxClients {
		return fmt.Errorf("max_players must be between 0 and max_clients")
	}

	if _, ok := gametype.ParseName(c.Server.Gametype); !ok {
		return fmt.Errorf("unknown gametype: %s", c.Server.Gametype)
	}

	if c.Server.FrameRate <= 0 || c.Server.FrameRate > 100 {
		return fmt.Errorf("frame_rate must be between 1 and 100")
	}

	if c.Server.MenuWidth < 16 || c.Server.MenuWidth > 64 {
		return fmt.Errorf("menu_width must be between 16 and 64")
	}

	if c.Match.GraceTime < 0 {
		return fmt.Errorf("grace_time cannot be negative")
	}

	if c.Voting.CallvotePercentage < 1 || c.Voting.CallvotePercentage > 100 {
		return fmt.Errorf("callvote_percentage must be between 1 and 100")
	}

	for _, kind := range c.Voting.AllowedCallvotes {
		switch strings.ToLower(kind) {
		case "restart", "timeout", "nextmap", "map", "kick":
		default:
			return fmt.Errorf("unknown callvote: %s", kind)
		}
	}

	if c.Maps.ExcludeRecent < 0 {
		return fmt.Errorf("exclude_recent cannot be negative")
	}

	if c.Filter.MaxFilters < 0 || c.Filter.MaxFilters > 1024 {
		return fmt.Errorf("max_filters must be between 0 and 1024")
	}

	for name, o := range c.Gametypes {
		if _, ok := gametype.ParseName(name); !ok {
			return fmt.Errorf("unknown gametype override: %s", name)
		}
		if o != nil && o.ReadyPercent != nil && (*o.ReadyPercent < 0 || *o.ReadyPercent > 1) {
			return fmt.Errorf("gametypes.%s.ready_percent must be between 0 and 1", name)
		}
	}

	return nil
}
