package vote

import (
	"fmt"
	"strings"
	"time"
)

type Kind int

const (
	KindRestart Kind = iota
	KindTimeout
	KindNextMap
	KindMap
	KindKick
)

var kindNames = [...]string{
	KindRestart: "restart",
	KindTimeout: "timeout",
	KindNextMap: "nextmap",
	KindMap:     "map",
	KindKick:    "kick",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

func Kinds() []Kind {
	return []Kind{KindRestart, KindTimeout, KindNextMap, KindMap, KindKick}
}

// CallVote is a yes/no proposal raised by a player.
type CallVote struct {
	Kind           Kind
	Instigator     int
	InstigatorName string
	// map name for KindMap
	Arg string
	// victim slot for KindKick
	Target     int
	TargetName string

	OnPass func()

	ballots map[int]bool
	start   time.Duration
}

func NewCallVote(kind Kind, instigator int, instigatorName string, onPass func()) *CallVote {
	return &CallVote{
		Kind:           kind,
		Instigator:     instigator,
		InstigatorName: instigatorName,
		Target:         -1,
		OnPass:         onPass,
		ballots:        make(map[int]bool),
	}
}

func (v *CallVote) Description() string {
	switch v.Kind {
	case KindRestart:
		return "restart the match"
	case KindTimeout:
		return "call a timeout"
	case KindNextMap:
		return "end the match and go to the next map"
	case KindMap:
		return fmt.Sprintf("change map to %s", v.Arg)
	case KindKick:
		return fmt.Sprintf("kick %s", v.TargetName)
	default:
		return v.Kind.String()
	}
}

// Counts returns yes and no ballots from the given voters.
func (v *CallVote) Counts(voters []int) (yes, no int) {
	for _, slot := range voters {
		ballot, ok := v.ballots[slot]
		switch {
		case !ok:
		case ballot:
			yes++
		default:
			no++
		}
	}
	return yes, no
}

func (v *CallVote) Voted(slot int) (bool, bool) {
	ballot, ok := v.ballots[slot]
	return ballot, ok
}

func (v *CallVote) Started() time.Duration {
	return v.start
}
