package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/siohaza/q2match/internal/gametype"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "[server]\nname = \"test\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cfg.Match.Warmup || !cfg.Match.MapVote || !cfg.Filter.Ban {
		t.Fatalf("boolean defaults lost: %+v %+v", cfg.Match, cfg.Filter)
	}
	if cfg.Server.MaxClients != 16 || cfg.Server.MaxPlayers != 16 {
		t.Fatalf("client defaults = %d/%d", cfg.Server.MaxClients, cfg.Server.MaxPlayers)
	}
	if cfg.Match.Grace() != time.Second || cfg.FrameInterval() != 100*time.Millisecond {
		t.Fatalf("grace %v frame %v", cfg.Match.Grace(), cfg.FrameInterval())
	}
	if cfg.GameType() != gametype.FFA {
		t.Fatalf("gametype = %v", cfg.GameType())
	}
}

func TestExplicitFalseSurvives(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "[match]\nwarmup = false\n[filter]\nfilterban = false\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Match.Warmup || cfg.Filter.Ban {
		t.Fatalf("explicit false overwritten")
	}
}

func TestGametypeOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
[server]
gametype = "tdm"

[gametypes.TDM]
score_limit = 50
time_limit = 15

[gametypes.duel]
ready_percent = 0.5
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	tdm := cfg.Limits(gametype.GetInfo(gametype.TeamDeathmatch))
	if tdm.ScoreLimit != 50 || tdm.TimeLimit != 15*time.Minute {
		t.Fatalf("tdm limits = %+v", tdm)
	}
	if tdm.ReadyPercent != gametype.GetInfo(gametype.TeamDeathmatch).ReadyUpPercentile {
		t.Fatalf("unset field must keep the default")
	}

	duel := cfg.Limits(gametype.GetInfo(gametype.Duel))
	if duel.ReadyPercent != 0.5 || duel.TimeLimit != 10*time.Minute {
		t.Fatalf("duel limits = %+v", duel)
	}

	ctf := cfg.Limits(gametype.GetInfo(gametype.CTF))
	if ctf.ScoreLimit != 8 {
		t.Fatalf("ctf without override = %+v", ctf)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"gametype", "[server]\ngametype = \"quidditch\"\n", "unknown gametype"},
		{"players", "[server]\nmax_clients = 4\nmax_players = 8\n", "max_players"},
		{"callvote", "[voting]\nallowed_callvotes = [\"ban\"]\n", "unknown callvote"},
		{"override", "[gametypes.nope]\nscore_limit = 1\n", "override"},
		{"ready", "[gametypes.ffa]\nready_percent = 2.0\n", "ready_percent"},
	}
	for _, tt := range tests {
		cfg, err := LoadConfig(writeConfig(t, tt.content))
		if err != nil {
			t.Fatalf("%s: load: %v", tt.name, err)
		}
		err = cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("missing file should fail")
	}
}
