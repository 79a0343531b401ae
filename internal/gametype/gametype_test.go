package gametype

import "testing"

func TestNormalizeOutOfRange(t *testing.T) {
	for _, v := range []int{-100, -1, int(None), int(Last) + 1, 1 << 20} {
		if got := Normalize(v); got != FFA {
			t.Errorf("Normalize(%d) = %v, want ffa", v, got)
		}
		if IsValid(v) {
			t.Errorf("IsValid(%d) = true, want false", v)
		}
	}
}

func TestNormalizeInRange(t *testing.T) {
	for v := int(First); v <= int(Last); v++ {
		if got := Normalize(v); int(got) != v {
			t.Errorf("Normalize(%d) = %d", v, got)
		}
		if !IsValid(v) {
			t.Errorf("IsValid(%d) = false", v)
		}
	}
}

func TestGetInfoRoundTrip(t *testing.T) {
	for gt := First; gt <= Last; gt++ {
		info := GetInfo(gt)
		if info.Type != gt {
			t.Fatalf("GetInfo(%d).Type = %d", gt, info.Type)
		}
		if info.ShortName == "" || info.Name == "" {
			t.Fatalf("gametype %d has no name", gt)
		}
		parsed, ok := ParseName(info.ShortName)
		if !ok || parsed != gt {
			t.Fatalf("ParseName(%q) = %v, %v", info.ShortName, parsed, ok)
		}
	}
}

func TestGetInfoFallsBackToFFA(t *testing.T) {
	if GetInfo(None).Type != FFA {
		t.Fatalf("None should resolve to ffa")
	}
	if GetInfo(GameType(999)).Type != FFA {
		t.Fatalf("out of range should resolve to ffa")
	}
}

func TestFlags(t *testing.T) {
	if !CTF.Teams() || !CTF.CTF() {
		t.Fatalf("ctf flags wrong: %b", GetInfo(CTF).Flags)
	}
	if FFA.Teams() {
		t.Fatalf("ffa must not be a team mode")
	}
	if !Duel.OneVOne() {
		t.Fatalf("duel must be one-v-one")
	}
	if !ClanArena.Rounds() || !ClanArena.Elimination() {
		t.Fatalf("clan arena must be round based elimination")
	}
	if !Horde.Has(FlagHorde) {
		t.Fatalf("horde flag missing")
	}
}

func TestMask(t *testing.T) {
	var empty Mask
	if !empty.Allows(CTF) {
		t.Fatalf("empty mask should allow everything")
	}
	m := MaskOf(FFA, TeamDeathmatch, None)
	if !m.Allows(FFA) || !m.Allows(TeamDeathmatch) {
		t.Fatalf("mask %b missing members", m)
	}
	if m.Allows(CTF) {
		t.Fatalf("mask %b should not allow ctf", m)
	}
}
