package monitor

// State is where the monitor is in the client's game flow.
type State int

const (
	Idle State = iota
	MonitoringChampSelect
	GameStarted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case MonitoringChampSelect:
		return "MonitoringChampSelect"
	case GameStarted:
		return "GameStarted"
	default:
		return "Unknown"
	}
}

// Gameflow phases reported by the client. Others exist and are ignored.
const (
	PhaseNone         = "None"
	PhaseLobby        = "Lobby"
	PhaseChampSelect  = "ChampSelect"
	PhaseGameStart    = "GameStart"
	PhaseInProgress   = "InProgress"
	PhasePreEndOfGame = "PreEndOfGame"
	PhaseEndOfGame    = "EndOfGame"
)
