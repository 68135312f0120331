package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

// NormalizeState converts a loosely typed state payload into the canonical
// game state. Every field that is missing or of the wrong type falls back to
// its named default; the result is fully populated regardless of input.
func NormalizeState(raw json.RawMessage) *entity.GameState {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		fields = nil
	}

	return &entity.GameState{
		RoomCode: stringField(fields, "room_code", ""),
		Board:    normalizeBoard(fields["board"]),
		Turn:     stringField(fields, "turn", entity.DefaultTurn),
		Status:   stringField(fields, "status", entity.DefaultStatus),
		Winner:   stringField(fields, "winner", entity.DefaultWinner),
		Players:  normalizePlayers(fields["players"]),
	}
}

// IsObject reports whether raw holds a JSON object. Room acknowledgments only
// carry a usable embedded state when it is one.
func IsObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func stringField(fields map[string]json.RawMessage, key, fallback string) string {
	var value string
	if err := json.Unmarshal(fields[key], &value); err != nil {
		return fallback
	}

	return value
}

// normalizeBoard coerces every cell to a string, replacing non-string cells
// with the empty cell, and right-pads the board up to BoardSize. A longer
// board is kept as-is; a non-array input yields an all-empty board.
func normalizeBoard(raw json.RawMessage) []string {
	var cells []json.RawMessage
	if err := json.Unmarshal(raw, &cells); err != nil {
		cells = nil
	}

	board := make([]string, 0, entity.BoardSize)
	for _, cell := range cells {
		var value string
		if err := json.Unmarshal(cell, &value); err != nil {
			value = entity.EmptyCell
		}
		board = append(board, value)
	}

	for len(board) < entity.BoardSize {
		board = append(board, entity.EmptyCell)
	}

	return board
}

func normalizePlayers(raw json.RawMessage) map[string]entity.PlayerInfo {
	var players map[string]entity.PlayerInfo
	if err := json.Unmarshal(raw, &players); err != nil || players == nil {
		return map[string]entity.PlayerInfo{}
	}

	return players
}
