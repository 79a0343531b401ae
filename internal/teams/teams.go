package teams

import "github.com/siohaza/q2match/internal/player"

type Decision int

const (
	Allow Decision = iota
	QueueForDuel
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case QueueForDuel:
		return "queue"
	default:
		return "deny"
	}
}

type JoinRequest struct {
	JoinPlaying   bool
	WantsQueue    bool
	Forced        bool
	WasPlaying    bool
	OneVOne       bool
	Human         bool
	PlayingHumans int
	MaxPlayers    int
}

// Decide gates a join against the configured player cap. Zero or negative
// MaxPlayers means unlimited.
func Decide(r JoinRequest) Decision {
	if !r.JoinPlaying || r.WantsQueue || r.Forced || r.WasPlaying || !r.Human {
		return Allow
	}
	if r.MaxPlayers <= 0 || r.PlayingHumans < r.MaxPlayers {
		return Allow
	}
	if r.OneVOne {
		return QueueForDuel
	}
	return Deny
}

// PickTeam chooses the side an auto-joining player goes to: the smaller
// team, then the losing one, then red.
func PickTeam(red, blue, redScore, blueScore int) player.Team {
	switch {
	case red < blue:
		return player.TeamRed
	case blue < red:
		return player.TeamBlue
	case blueScore < redScore:
		return player.TeamBlue
	default:
		return player.TeamRed
	}
}
