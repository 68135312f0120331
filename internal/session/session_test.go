package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/protocol"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

type sentMessage struct {
	msgType string
	payload any
}

// fakeTransport records intents instead of hitting the wire.
type fakeTransport struct {
	status      entity.ConnectionStatus
	errMessage  string
	sent        []sentMessage
	ensureCalls []bool
	ensureErr   error
	closeCalls  int
	inbound     chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status:  entity.StatusDisconnected,
		inbound: make(chan string, 8),
	}
}

func (that *fakeTransport) EnsureConnected(_ context.Context, force bool) error {
	that.ensureCalls = append(that.ensureCalls, force)
	if that.ensureErr != nil {
		return that.ensureErr
	}
	that.status = entity.StatusConnected
	return nil
}

func (that *fakeTransport) Send(msgType string, payload any) error {
	that.sent = append(that.sent, sentMessage{msgType: msgType, payload: payload})
	return nil
}

func (that *fakeTransport) Close() {
	that.closeCalls++
	that.status = entity.StatusDisconnected
}

func (that *fakeTransport) Status() entity.ConnectionStatus { return that.status }

func (that *fakeTransport) ErrorMessage() string { return that.errMessage }

func (that *fakeTransport) Messages() <-chan string { return that.inbound }

func newTestSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()

	transport := newFakeTransport()
	sess := New(slog.Default(), transport, "guest-1")

	return sess, transport
}

// joinAsPlayer drives the session into a connected player identity through
// the same inbound path the server would use.
func joinAsPlayer(t *testing.T, sess *Session, transport *fakeTransport) {
	t.Helper()

	require.NoError(t, sess.JoinRoom(context.Background(), "abcd", "Alice", false))
	sess.HandleMessage(`{"type":"room_joined","payload":{"room_code":"ABCD","player_id":"p1","symbol":"X","role":"player"}}`)

	require.Equal(t, entity.StatusConnected, transport.Status())
}

func TestSession_CreateRoom(t *testing.T) {
	// Given: a fresh session
	sess, transport := newTestSession(t)

	// When: the user creates a room
	require.NoError(t, sess.CreateRoom(context.Background(), "Alice"))

	// Then: a connection was ensured without force and the intent carries
	// the display name and the guest id
	require.Equal(t, []bool{false}, transport.ensureCalls)
	require.Len(t, transport.sent, 1)
	require.Equal(t, protocol.TypeCreateRoom, transport.sent[0].msgType)
	require.Equal(t, protocol.CreateRoomPayload{Name: "Alice", GuestID: "guest-1"}, transport.sent[0].payload)
}

func TestSession_JoinRoom(t *testing.T) {
	t.Run("room code is upper-cased", func(t *testing.T) {
		sess, transport := newTestSession(t)

		require.NoError(t, sess.JoinRoom(context.Background(), "abcd", "Alice", false))

		require.Equal(t, protocol.JoinRoomPayload{
			RoomCode:  "ABCD",
			Name:      "Alice",
			Spectator: false,
			GuestID:   "guest-1",
		}, transport.sent[0].payload)
	})

	t.Run("spectator flag is forwarded", func(t *testing.T) {
		sess, transport := newTestSession(t)

		require.NoError(t, sess.JoinRoom(context.Background(), "abcd", "Bob", true))

		payload, ok := transport.sent[0].payload.(protocol.JoinRoomPayload)
		require.True(t, ok)
		require.True(t, payload.Spectator)
	})

	t.Run("join clears a previous room-closed notice", func(t *testing.T) {
		sess, transport := newTestSession(t)
		sess.HandleMessage(`{"type":"room_closed","payload":{"reason":"opponent_left"}}`)
		require.True(t, sess.Snapshot().RoomClosed)

		require.NoError(t, sess.JoinRoom(context.Background(), "abcd", "Alice", false))

		snap := sess.Snapshot()
		require.False(t, snap.RoomClosed)
		require.Empty(t, snap.RoomClosedReason)
		require.NotEmpty(t, transport.sent)
	})
}

func TestSession_Reconnect(t *testing.T) {
	t.Run("fails fast without a remembered identity", func(t *testing.T) {
		sess, transport := newTestSession(t)

		err := sess.Reconnect(context.Background())

		require.ErrorIs(t, err, apperror.ErrNothingToReconnect)
		require.Empty(t, transport.ensureCalls)
		require.Empty(t, transport.sent)
		require.Equal(t, "No session to reconnect.", sess.Snapshot().ErrorMessage)
	})

	t.Run("forces a fresh dial and resends the identity", func(t *testing.T) {
		// Given: a session that had joined a room as a player
		sess, transport := newTestSession(t)
		joinAsPlayer(t, sess, transport)
		transport.sent = nil
		transport.ensureCalls = nil

		// When: the user reconnects after a drop
		require.NoError(t, sess.Reconnect(context.Background()))

		// Then: the dial was forced and join_room carries the remembered
		// room code and player id instead of a display name
		require.Equal(t, []bool{true}, transport.ensureCalls)
		require.Equal(t, protocol.JoinRoomPayload{
			RoomCode:  "ABCD",
			PlayerID:  "p1",
			Spectator: false,
			GuestID:   "guest-1",
		}, transport.sent[0].payload)
	})

	t.Run("spectators reconnect as spectators", func(t *testing.T) {
		sess, transport := newTestSession(t)
		require.NoError(t, sess.JoinRoom(context.Background(), "abcd", "Bob", true))
		sess.HandleMessage(`{"type":"room_joined","payload":{"room_code":"ABCD","player_id":"s1","role":"spectator"}}`)
		transport.sent = nil

		require.NoError(t, sess.Reconnect(context.Background()))

		payload, ok := transport.sent[0].payload.(protocol.JoinRoomPayload)
		require.True(t, ok)
		require.True(t, payload.Spectator)
	})
}

func TestSession_SendMove(t *testing.T) {
	t.Run("sends the move for a connected player", func(t *testing.T) {
		sess, transport := newTestSession(t)
		joinAsPlayer(t, sess, transport)
		transport.sent = nil

		require.NoError(t, sess.SendMove(4))

		require.Equal(t, protocol.TypeMove, transport.sent[0].msgType)
		require.Equal(t, protocol.MovePayload{RoomCode: "ABCD", PlayerID: "p1", Cell: 4}, transport.sent[0].payload)
	})

	t.Run("rejected without a room identity", func(t *testing.T) {
		sess, transport := newTestSession(t)

		require.ErrorIs(t, sess.SendMove(0), apperror.ErrNotInRoom)
		require.Empty(t, transport.sent)
	})

	t.Run("rejected for spectators", func(t *testing.T) {
		sess, transport := newTestSession(t)
		require.NoError(t, sess.JoinRoom(context.Background(), "abcd", "Bob", true))
		sess.HandleMessage(`{"type":"room_joined","payload":{"room_code":"ABCD","player_id":"s1","role":"spectator"}}`)
		transport.sent = nil

		require.ErrorIs(t, sess.SendMove(0), apperror.ErrSpectator)
		require.Empty(t, transport.sent)
	})

	t.Run("rejected while not connected", func(t *testing.T) {
		sess, transport := newTestSession(t)
		joinAsPlayer(t, sess, transport)
		transport.status = entity.StatusDisconnected
		transport.sent = nil

		require.ErrorIs(t, sess.SendMove(0), apperror.ErrNotConnected)
		require.Empty(t, transport.sent)
	})
}

func TestSession_RequestRematch(t *testing.T) {
	t.Run("sends the rematch intent for a connected player", func(t *testing.T) {
		sess, transport := newTestSession(t)
		joinAsPlayer(t, sess, transport)
		transport.sent = nil

		require.NoError(t, sess.RequestRematch())

		require.Equal(t, protocol.TypeRematch, transport.sent[0].msgType)
		require.Equal(t, protocol.RematchPayload{RoomCode: "ABCD", PlayerID: "p1"}, transport.sent[0].payload)
	})

	t.Run("same guards as SendMove", func(t *testing.T) {
		sess, transport := newTestSession(t)

		require.ErrorIs(t, sess.RequestRematch(), apperror.ErrNotInRoom)
		require.Empty(t, transport.sent)
	})
}

func TestSession_HandleMessage(t *testing.T) {
	t.Run("room acknowledgment applies identity and embedded state", func(t *testing.T) {
		sess, _ := newTestSession(t)

		sess.HandleMessage(`{"type":"room_created","payload":{"room_code":"WXYZ","player_id":"p9","symbol":"O","role":"player","state":{"board":["X"],"turn":"O"}}}`)

		snap := sess.Snapshot()
		require.Equal(t, "WXYZ", snap.RoomCode)
		require.Equal(t, "p9", snap.PlayerID)
		require.Equal(t, "O", snap.Symbol)
		require.Equal(t, entity.RolePlayer, snap.Role)
		require.NotNil(t, snap.Game)
		require.Equal(t, "O", snap.Game.Turn)
		require.Len(t, snap.Game.Board, entity.BoardSize)
	})

	t.Run("becoming a spectator clears the symbol", func(t *testing.T) {
		// Given: a player identity with a symbol
		sess, transport := newTestSession(t)
		joinAsPlayer(t, sess, transport)
		require.Equal(t, "X", sess.Snapshot().Symbol)

		// When: the server downgrades the role to spectator
		sess.HandleMessage(`{"type":"room_joined","payload":{"role":"spectator"}}`)

		// Then: the symbol is gone, whatever it was
		snap := sess.Snapshot()
		require.Equal(t, entity.RoleSpectator, snap.Role)
		require.Empty(t, snap.Symbol)
	})

	t.Run("state frames replace the game state wholesale", func(t *testing.T) {
		sess, _ := newTestSession(t)

		sess.HandleMessage(`{"type":"state","payload":{"board":["X"],"winner":"X","status":"finished"}}`)
		require.Equal(t, "X", sess.Snapshot().Game.Winner)

		// a second frame without a winner reverts to the default, it does
		// not keep the first frame's value
		sess.HandleMessage(`{"type":"state","payload":{"board":["X","O"]}}`)

		snap := sess.Snapshot()
		require.Equal(t, entity.DefaultWinner, snap.Game.Winner)
		require.Equal(t, entity.DefaultStatus, snap.Game.Status)
		require.Equal(t, []string{"X", "O", "", "", "", "", "", "", ""}, snap.Game.Board)
	})

	t.Run("player_left notice depends on the role", func(t *testing.T) {
		sess, transport := newTestSession(t)
		joinAsPlayer(t, sess, transport)

		sess.HandleMessage(`{"type":"player_left","payload":{}}`)
		require.Equal(t, noticeOpponentLeft, sess.Snapshot().ErrorMessage)

		sess.HandleMessage(`{"type":"room_joined","payload":{"role":"spectator"}}`)
		sess.HandleMessage(`{"type":"player_left","payload":{}}`)
		require.Equal(t, noticePlayerLeft, sess.Snapshot().ErrorMessage)
	})

	t.Run("room_closed disconnects regardless of prior status", func(t *testing.T) {
		sess, transport := newTestSession(t)
		joinAsPlayer(t, sess, transport)

		sess.HandleMessage(`{"type":"room_closed","payload":{"reason":"opponent_left"}}`)

		snap := sess.Snapshot()
		require.True(t, snap.RoomClosed)
		require.Equal(t, "opponent_left", snap.RoomClosedReason)
		require.Equal(t, entity.StatusDisconnected, snap.ConnectionStatus)
		require.Equal(t, 1, transport.closeCalls)
	})

	t.Run("room_closed without a reason uses the default", func(t *testing.T) {
		sess, _ := newTestSession(t)

		sess.HandleMessage(`{"type":"room_closed","payload":{}}`)

		require.Equal(t, defaultRoomClosedReason, sess.Snapshot().RoomClosedReason)
	})

	t.Run("error frames surface the server message", func(t *testing.T) {
		sess, _ := newTestSession(t)

		sess.HandleMessage(`{"type":"error","payload":{"message":"room is full"}}`)
		require.Equal(t, "room is full", sess.Snapshot().ErrorMessage)

		sess.HandleMessage(`{"type":"error","payload":{}}`)
		require.Equal(t, noticeUnknownError, sess.Snapshot().ErrorMessage)
	})

	t.Run("malformed frames and unknown types are ignored", func(t *testing.T) {
		sess, transport := newTestSession(t)
		joinAsPlayer(t, sess, transport)
		before := sess.Snapshot()

		sess.HandleMessage(`not json at all`)
		sess.HandleMessage(`{"type":"matchmaking_update","payload":{"queue":3}}`)

		require.Equal(t, before, sess.Snapshot())
	})
}

func TestSession_LeaveRoom(t *testing.T) {
	// Given: a session mid-game with notices set
	sess, transport := newTestSession(t)
	joinAsPlayer(t, sess, transport)
	sess.HandleMessage(`{"type":"state","payload":{"board":["X"],"status":"in_progress"}}`)
	sess.HandleMessage(`{"type":"error","payload":{"message":"room is full"}}`)

	// When: the user leaves
	sess.LeaveRoom()

	// Then: the transport was closed deliberately and every session field is
	// back to its initial value
	require.Equal(t, 1, transport.closeCalls)

	snap := sess.Snapshot()
	require.Empty(t, snap.RoomCode)
	require.Empty(t, snap.PlayerID)
	require.Empty(t, snap.Symbol)
	require.Empty(t, snap.Role)
	require.Nil(t, snap.Game)
	require.False(t, snap.RoomClosed)
	require.Empty(t, snap.RoomClosedReason)
	require.Empty(t, snap.ErrorMessage)
	require.Equal(t, entity.StatusDisconnected, snap.ConnectionStatus)
}

func TestSession_Run(t *testing.T) {
	// Given: a running dispatch loop
	sess, transport := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()

	// When: the transport delivers a state frame
	transport.inbound <- `{"type":"state","payload":{"board":["X"],"turn":"O"}}`

	// Then: the session picks it up from the inbound channel
	require.Eventually(t, func() bool {
		snap := sess.Snapshot()
		return snap.Game != nil && snap.Game.Turn == "O"
	}, testWait, testTick)

	cancel()
	<-done
}
