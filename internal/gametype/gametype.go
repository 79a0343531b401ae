package gametype

import (
	"strings"
	"time"
)

type GameType int

const (
	None GameType = iota
	FFA
	Duel
	TeamDeathmatch
	CTF
	ClanArena
	OneFlag
	Harvester
	FreezeTag
	CaptureStrike
	RedRover
	LastManStanding
	LastTeamStanding
	Horde
	ProBall
	Gauntlet
	Domination

	numGameTypes

	First = FFA
	Last  = numGameTypes - 1
)

type Flag uint32

const (
	FlagTeams Flag = 1 << iota
	FlagCTF
	FlagArena
	FlagRounds
	FlagElimination
	FlagOneVOne
	FlagFrags
	FlagLives
	FlagHorde
)

type Info struct {
	Type                GameType
	ShortName           string
	Name                string
	Flags               Flag
	ScoreLimit          int
	TimeLimit           time.Duration
	RoundLimit          int
	WeaponRespawnDelay  time.Duration
	HoldablesEnabled    bool
	PowerupsEnabled     bool
	StartingHealthBonus int
	ReadyUpPercentile   float64
}

func (i Info) Has(f Flag) bool {
	return i.Flags&f != 0
}

// indexed by GameType; entry 0 is unused, lookups of None resolve to FFA
var table = [numGameTypes]Info{
	FFA: {
		ShortName: "ffa", Name: "Free For All",
		Flags:      FlagFrags,
		ScoreLimit: 40, TimeLimit: 10 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		StartingHealthBonus: 25,
		ReadyUpPercentile:   0.51,
	},
	Duel: {
		ShortName: "duel", Name: "Duel",
		Flags:      FlagFrags | FlagOneVOne,
		ScoreLimit: 0, TimeLimit: 10 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   false, PowerupsEnabled: false,
		StartingHealthBonus: 0,
		ReadyUpPercentile:   1.0,
	},
	TeamDeathmatch: {
		ShortName: "tdm", Name: "Team Deathmatch",
		Flags:      FlagTeams | FlagFrags,
		ScoreLimit: 100, TimeLimit: 20 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		StartingHealthBonus: 25,
		ReadyUpPercentile:   0.66,
	},
	CTF: {
		ShortName: "ctf", Name: "Capture The Flag",
		Flags:      FlagTeams | FlagCTF,
		ScoreLimit: 8, TimeLimit: 20 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		StartingHealthBonus: 25,
		ReadyUpPercentile:   0.66,
	},
	ClanArena: {
		ShortName: "ca", Name: "Clan Arena",
		Flags:      FlagTeams | FlagArena | FlagRounds | FlagElimination,
		ScoreLimit: 7, TimeLimit: 0, RoundLimit: 13,
		ReadyUpPercentile: 0.66,
	},
	OneFlag: {
		ShortName: "oneflag", Name: "One Flag CTF",
		Flags:      FlagTeams | FlagCTF,
		ScoreLimit: 8, TimeLimit: 20 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		StartingHealthBonus: 25,
		ReadyUpPercentile:   0.66,
	},
	Harvester: {
		ShortName: "har", Name: "Harvester",
		Flags:      FlagTeams | FlagCTF,
		ScoreLimit: 20, TimeLimit: 20 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		StartingHealthBonus: 25,
		ReadyUpPercentile:   0.66,
	},
	FreezeTag: {
		ShortName: "ft", Name: "Freeze Tag",
		Flags:      FlagTeams | FlagRounds | FlagElimination,
		ScoreLimit: 8, TimeLimit: 20 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		ReadyUpPercentile: 0.66,
	},
	CaptureStrike: {
		ShortName: "strike", Name: "CaptureStrike",
		Flags:      FlagTeams | FlagCTF | FlagArena | FlagRounds | FlagElimination,
		ScoreLimit: 8, TimeLimit: 0, RoundLimit: 15,
		ReadyUpPercentile: 0.66,
	},
	RedRover: {
		ShortName: "rr", Name: "Red Rover",
		Flags:      FlagTeams | FlagArena | FlagRounds | FlagElimination,
		ScoreLimit: 0, TimeLimit: 20 * time.Minute, RoundLimit: 10,
		ReadyUpPercentile: 0.66,
	},
	LastManStanding: {
		ShortName: "lms", Name: "Last Man Standing",
		Flags:      FlagElimination | FlagLives,
		ScoreLimit: 0, TimeLimit: 20 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		ReadyUpPercentile: 0.51,
	},
	LastTeamStanding: {
		ShortName: "lts", Name: "Last Team Standing",
		Flags:      FlagTeams | FlagElimination | FlagLives,
		ScoreLimit: 0, TimeLimit: 20 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		ReadyUpPercentile: 0.66,
	},
	Horde: {
		ShortName: "horde", Name: "Horde Mode",
		Flags:      FlagHorde | FlagRounds,
		ScoreLimit: 0, TimeLimit: 0, RoundLimit: 10,
		WeaponRespawnDelay: 15 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		StartingHealthBonus: 50,
		ReadyUpPercentile:   0.51,
	},
	ProBall: {
		ShortName: "ball", Name: "ProBall",
		Flags:      FlagTeams,
		ScoreLimit: 10, TimeLimit: 15 * time.Minute,
		ReadyUpPercentile: 0.66,
	},
	Gauntlet: {
		ShortName: "gauntlet", Name: "Gauntlet",
		Flags:      FlagOneVOne | FlagRounds | FlagArena,
		ScoreLimit: 8, TimeLimit: 0,
		ReadyUpPercentile: 0.51,
	},
	Domination: {
		ShortName: "dom", Name: "Domination",
		Flags:      FlagTeams,
		ScoreLimit: 200, TimeLimit: 20 * time.Minute,
		WeaponRespawnDelay: 30 * time.Second,
		HoldablesEnabled:   true, PowerupsEnabled: true,
		StartingHealthBonus: 25,
		ReadyUpPercentile:   0.66,
	},
}

func init() {
	for t := First; t <= Last; t++ {
		table[t].Type = t
	}
}

// GetInfo never fails; anything outside [First, Last] resolves to FFA.
func GetInfo(t GameType) Info {
	if t < First || t > Last {
		return table[FFA]
	}
	return table[t]
}

func Normalize(v int) GameType {
	if !IsValid(v) {
		return FFA
	}
	return GameType(v)
}

func IsValid(v int) bool {
	return v >= int(First) && v <= int(Last) && GameType(v) != None
}

func All() []Info {
	infos := make([]Info, 0, Last-First+1)
	for t := First; t <= Last; t++ {
		infos = append(infos, table[t])
	}
	return infos
}

func ParseName(name string) (GameType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t := First; t <= Last; t++ {
		if table[t].ShortName == name {
			return t, true
		}
	}
	return None, false
}

func (t GameType) String() string {
	if t < First || t > Last {
		return "none"
	}
	return table[t].ShortName
}

func (t GameType) Info() Info {
	return GetInfo(t)
}

func (t GameType) Has(f Flag) bool {
	return GetInfo(t).Has(f)
}

func (t GameType) Teams() bool       { return t.Has(FlagTeams) }
func (t GameType) CTF() bool         { return t.Has(FlagCTF) }
func (t GameType) OneVOne() bool     { return t.Has(FlagOneVOne) }
func (t GameType) Elimination() bool { return t.Has(FlagElimination) }
func (t GameType) Rounds() bool      { return t.Has(FlagRounds) }

// Mask is a set of gametypes; the zero mask means every gametype.
type Mask uint32

func MaskOf(types ...GameType) Mask {
	var m Mask
	for _, t := range types {
		if t >= First && t <= Last {
			m |= 1 << uint(t)
		}
	}
	return m
}

func (m Mask) Allows(t GameType) bool {
	if m == 0 {
		return true
	}
	return m&(1<<uint(t)) != 0
}
