package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/protocol"
)

// Notices surfaced to the user. The one-minute grace window is enforced by
// the server; the client only repeats it.
const (
	noticeOpponentLeft      = "Opponent disconnected. They have 1 minute to come back."
	noticePlayerLeft        = "Player disconnected. They have 1 minute to come back."
	noticeNothingToResume   = "No session to reconnect."
	noticeUnknownError      = "Unknown error."
	defaultRoomClosedReason = "room_closed"
)

// transport is the connection manager as seen by the session: connect,
// transmit, hang up, observe.
type transport interface {
	EnsureConnected(ctx context.Context, force bool) error
	Send(msgType string, payload any) error
	Close()
	Status() entity.ConnectionStatus
	ErrorMessage() string
	Messages() <-chan string
}

// Snapshot is a point-in-time, alias-free view of the session for observers.
type Snapshot struct {
	ConnectionStatus entity.ConnectionStatus
	RoomCode         string
	PlayerID         string
	Symbol           string
	Role             string
	ErrorMessage     string
	RoomClosed       bool
	RoomClosedReason string
	Game             *entity.GameState
}

// Session drives room membership over the live connection: it owns the
// session identity and the latest normalized game state, and reacts to
// inbound frames to keep both current.
type Session struct {
	logger    *slog.Logger
	transport transport
	guestID   string

	mu               sync.Mutex
	roomCode         string
	playerID         string
	symbol           string
	role             string
	errMessage       string
	roomClosed       bool
	roomClosedReason string
	game             *entity.GameState
}

func New(logger *slog.Logger, transport transport, guestID string) *Session {
	return &Session{
		logger:    logger.With("component", "session"),
		transport: transport,
		guestID:   guestID,
	}
}

// Run consumes inbound frames until the context is canceled. All session
// mutation triggered by the server happens on this loop.
func (that *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-that.transport.Messages():
			if !ok {
				return
			}
			that.HandleMessage(raw)
		}
	}
}

// CreateRoom opens a connection if needed and asks the server for a fresh
// room under the given display name.
func (that *Session) CreateRoom(ctx context.Context, name string) error {
	that.resetNotices()

	if err := that.transport.EnsureConnected(ctx, false); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	return that.transport.Send(protocol.TypeCreateRoom, protocol.CreateRoomPayload{
		Name:    name,
		GuestID: that.guestID,
	})
}

// JoinRoom enters an existing room by code, as a player or a spectator.
func (that *Session) JoinRoom(ctx context.Context, code, name string, spectator bool) error {
	that.resetNotices()

	if err := that.transport.EnsureConnected(ctx, false); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	return that.transport.Send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomCode:  strings.ToUpper(code),
		Name:      name,
		Spectator: spectator,
		GuestID:   that.guestID,
	})
}

// Reconnect re-enters the remembered room under the remembered player
// identity after a dropped link. It always forces a fresh dial: the prior
// transport is assumed dead.
func (that *Session) Reconnect(ctx context.Context) error {
	that.mu.Lock()
	roomCode := that.roomCode
	playerID := that.playerID
	spectator := that.role == entity.RoleSpectator
	that.mu.Unlock()

	if roomCode == "" || playerID == "" {
		that.setErrorMessage(noticeNothingToResume)
		return apperror.ErrNothingToReconnect
	}

	that.resetNotices()

	if err := that.transport.EnsureConnected(ctx, true); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	return that.transport.Send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomCode:  roomCode,
		PlayerID:  playerID,
		Spectator: spectator,
		GuestID:   that.guestID,
	})
}

// SendMove submits a move for the given cell. Legality is the server's call;
// the client only refuses what can never be valid: no identity, spectator
// role, or no live connection.
func (that *Session) SendMove(cell int) error {
	roomCode, playerID, err := that.playableIdentity()
	if err != nil {
		return err
	}

	return that.transport.Send(protocol.TypeMove, protocol.MovePayload{
		RoomCode: roomCode,
		PlayerID: playerID,
		Cell:     cell,
	})
}

// RequestRematch asks for a new game in the same room. Same guards as
// SendMove.
func (that *Session) RequestRematch() error {
	roomCode, playerID, err := that.playableIdentity()
	if err != nil {
		return err
	}

	return that.transport.Send(protocol.TypeRematch, protocol.RematchPayload{
		RoomCode: roomCode,
		PlayerID: playerID,
	})
}

// LeaveRoom hangs up deliberately and resets the session to its initial
// state. Safe to call at any point of the connection lifecycle.
func (that *Session) LeaveRoom() {
	that.transport.Close()

	that.mu.Lock()
	defer that.mu.Unlock()

	that.roomCode = ""
	that.playerID = ""
	that.symbol = ""
	that.role = ""
	that.game = nil
	that.roomClosed = false
	that.roomClosedReason = ""
	that.errMessage = ""
}

// HandleMessage decodes one inbound frame and applies its effect. Malformed
// frames and unknown types are dropped without a trace: the wire is allowed
// to speak a newer dialect.
func (that *Session) HandleMessage(raw string) {
	msg, ok := protocol.Decode([]byte(raw))
	if !ok {
		that.logger.Debug("dropping malformed frame")
		return
	}

	switch msg.Type {
	case protocol.TypeRoomCreated, protocol.TypeRoomJoined:
		that.applyRoomResponse(msg.Payload)
	case protocol.TypeState:
		that.applyState(msg.Payload)
	case protocol.TypePlayerLeft:
		that.applyPlayerLeft()
	case protocol.TypeRoomClosed:
		that.applyRoomClosed(msg.Payload)
	case protocol.TypeError:
		that.applyError(msg.Payload)
	default:
		that.logger.Debug("ignoring unknown message type", "type", msg.Type)
	}
}

// IsSpectator reports whether the current role bars play.
func (that *Session) IsSpectator() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.role == entity.RoleSpectator
}

// IsConnected mirrors the transport status.
func (that *Session) IsConnected() bool {
	return that.transport.Status() == entity.StatusConnected
}

// Snapshot returns the current session view. The game state is cloned so the
// caller cannot alias live data.
func (that *Session) Snapshot() Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	message := that.errMessage
	if message == "" {
		message = that.transport.ErrorMessage()
	}

	return Snapshot{
		ConnectionStatus: that.transport.Status(),
		RoomCode:         that.roomCode,
		PlayerID:         that.playerID,
		Symbol:           that.symbol,
		Role:             that.role,
		ErrorMessage:     message,
		RoomClosed:       that.roomClosed,
		RoomClosedReason: that.roomClosedReason,
		Game:             that.game.Clone(),
	}
}

func (that *Session) applyRoomResponse(raw json.RawMessage) {
	var payload protocol.RoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		that.logger.Debug("dropping malformed room response", "error", err)
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if payload.RoomCode != "" {
		that.roomCode = payload.RoomCode
	}
	if payload.PlayerID != "" {
		that.playerID = payload.PlayerID
	}
	if payload.Symbol != "" {
		that.symbol = payload.Symbol
	}
	if payload.Role != "" {
		that.role = payload.Role
	}
	if that.role == entity.RoleSpectator {
		// spectators never hold a symbol, whatever was set before
		that.symbol = ""
	}

	if protocol.IsObject(payload.State) {
		that.game = protocol.NormalizeState(payload.State)
	}
}

func (that *Session) applyState(raw json.RawMessage) {
	state := protocol.NormalizeState(raw)

	that.mu.Lock()
	defer that.mu.Unlock()

	that.game = state
}

func (that *Session) applyPlayerLeft() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.role == entity.RoleSpectator {
		that.errMessage = noticePlayerLeft
	} else {
		that.errMessage = noticeOpponentLeft
	}
}

func (that *Session) applyRoomClosed(raw json.RawMessage) {
	var payload protocol.RoomClosedPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Reason == "" {
		payload.Reason = defaultRoomClosedReason
	}

	that.mu.Lock()
	that.roomClosed = true
	that.roomClosedReason = payload.Reason
	that.mu.Unlock()

	// the room is gone server-side; hang up so the status reads disconnected
	that.transport.Close()

	that.logger.Debug("room closed", "reason", payload.Reason)
}

func (that *Session) applyError(raw json.RawMessage) {
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		payload.Message = noticeUnknownError
	}

	that.setErrorMessage(payload.Message)
}

// playableIdentity returns the room and player ids when the session may
// submit play intents, or the precondition that fails.
func (that *Session) playableIdentity() (string, string, error) {
	that.mu.Lock()
	roomCode := that.roomCode
	playerID := that.playerID
	spectator := that.role == entity.RoleSpectator
	that.mu.Unlock()

	if roomCode == "" || playerID == "" {
		return "", "", apperror.ErrNotInRoom
	}
	if spectator {
		return "", "", apperror.ErrSpectator
	}
	if that.transport.Status() != entity.StatusConnected {
		return "", "", apperror.ErrNotConnected
	}

	return roomCode, playerID, nil
}

func (that *Session) resetNotices() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.roomClosed = false
	that.roomClosedReason = ""
	that.errMessage = ""
}

func (that *Session) setErrorMessage(message string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.errMessage = message
}
