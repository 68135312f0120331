package entity

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusFinished   = "finished"

	PlayerX = "X"
	PlayerO = "O"

	EmptyCell = ""

	// BoardSize is the minimum cell count of a normalized board. Shorter
	// server payloads are right-padded up to it, longer ones are kept.
	BoardSize = 9
)

// Defaults applied when a state payload omits or mistypes a field.
const (
	DefaultTurn   = PlayerX
	DefaultStatus = StatusWaiting
	DefaultWinner = ""
)

// PlayerInfo describes one participant of a room as reported by the server.
type PlayerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// GameState is the canonical, fully populated room state. The server owns the
// rules; the client mirrors whatever it sends. Every inbound state frame
// replaces the whole record, fields are never patched individually.
type GameState struct {
	RoomCode string                `json:"room_code"`
	Board    []string              `json:"board"`
	Turn     string                `json:"turn"`
	Status   string                `json:"status"`
	Winner   string                `json:"winner"`
	Players  map[string]PlayerInfo `json:"players"`
}

func (that *GameState) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *GameState) IsInProgress() bool {
	return that.Status == StatusInProgress
}

func (that *GameState) IsFinished() bool {
	return that.Status == StatusFinished
}

// Clone returns an independent copy so observers cannot alias the session's
// own record.
func (that *GameState) Clone() *GameState {
	if that == nil {
		return nil
	}

	clone := *that

	clone.Board = make([]string, len(that.Board))
	copy(clone.Board, that.Board)

	clone.Players = make(map[string]PlayerInfo, len(that.Players))
	for id, player := range that.Players {
		clone.Players[id] = player
	}

	return &clone
}
