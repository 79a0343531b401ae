package match

type State int

const (
	StateWarmup State = iota
	StateCountdown
	StateInProgress
	StateTimeout
	StateIntermission
)

func (s State) String() string {
	switch s {
	case StateWarmup:
		return "warmup"
	case StateCountdown:
		return "countdown"
	case StateInProgress:
		return "in progress"
	case StateTimeout:
		return "timeout"
	case StateIntermission:
		return "intermission"
	default:
		return "unknown"
	}
}

func (s State) Playing() bool {
	return s == StateInProgress || s == StateTimeout
}
