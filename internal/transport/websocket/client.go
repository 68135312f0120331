package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/protocol"
)

const inboundBuffer = 64

// ticketProvider mints a short-lived credential for one connection attempt.
// An empty ticket is valid: the connection is attempted without one and the
// server decides whether to accept it.
type ticketProvider interface {
	Ticket(ctx context.Context) (string, error)
}

// Client owns the single live WebSocket of a session. It tracks connection
// status, buffers messages issued while the handshake is still in flight and
// delivers inbound text frames to a channel consumed by the session's
// dispatch loop.
type Client struct {
	logger    *slog.Logger
	serverURL string
	tickets   ticketProvider
	dialer    *websocket.Dialer

	mu          sync.Mutex
	conn        *websocket.Conn
	status      entity.ConnectionStatus
	errMessage  string
	pending     [][]byte
	manualClose bool

	inbound chan string
}

func New(logger *slog.Logger, serverURL string, tickets ticketProvider) *Client {
	return &Client{
		logger:    logger.With("component", "transport"),
		serverURL: serverURL,
		tickets:   tickets,
		dialer:    websocket.DefaultDialer,
		status:    entity.StatusDisconnected,
		inbound:   make(chan string, inboundBuffer),
	}
}

// Connect tears down any prior transport, fetches a fresh ticket and opens a
// new connection. Messages queued while the handshake was in flight are
// flushed in order the moment it opens.
func (that *Client) Connect(ctx context.Context) error {
	that.mu.Lock()
	if that.conn != nil {
		that.conn.Close()
		that.conn = nil
	}
	that.pending = nil
	that.manualClose = false
	that.status = entity.StatusConnecting
	that.errMessage = ""
	that.mu.Unlock()

	ticket, err := that.tickets.Ticket(ctx)
	if err != nil {
		that.fail("could not reach the ticket service")
		return fmt.Errorf("failed to obtain connection ticket: %w", err)
	}

	wsURL, err := attachTicket(that.serverURL, ticket)
	if err != nil {
		that.fail("invalid server address")
		return fmt.Errorf("failed to build server url: %w", err)
	}

	conn, _, err := that.dialer.DialContext(ctx, wsURL, nil) //nolint:bodyclose // handshake response body is not readable on success
	if err != nil {
		that.fail("could not connect to the server")
		return fmt.Errorf("failed to dial %s: %w", that.serverURL, err)
	}

	that.mu.Lock()
	if that.manualClose {
		// Close raced with the handshake; the caller hung up already.
		that.mu.Unlock()
		conn.Close()
		return nil
	}

	that.conn = conn
	for _, message := range that.pending {
		if writeErr := conn.WriteMessage(websocket.TextMessage, message); writeErr != nil {
			that.pending = nil
			that.conn = nil
			that.status = entity.StatusError
			that.errMessage = "could not connect to the server"
			that.mu.Unlock()
			conn.Close()
			return fmt.Errorf("failed to flush queued message: %w", writeErr)
		}
	}
	that.pending = nil
	that.status = entity.StatusConnected
	that.mu.Unlock()

	that.logger.Debug("connection established", "url", that.serverURL)

	go that.readLoop(conn)

	return nil
}

// EnsureConnected is a no-op while a transport is alive, unless force is set;
// reconnection forces a fresh dial because the prior transport is assumed
// stale. It blocks the caller until the handshake succeeds or fails.
func (that *Client) EnsureConnected(ctx context.Context, force bool) error {
	that.mu.Lock()
	alive := that.conn != nil
	that.mu.Unlock()

	if alive && !force {
		return nil
	}

	return that.Connect(ctx)
}

// Send serializes the intent and transmits it, or queues it while the
// handshake is in flight. Without a transport the message is dropped:
// callers are responsible for EnsureConnected first.
func (that *Client) Send(msgType string, payload any) error {
	message, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	switch {
	case that.status == entity.StatusConnected && that.conn != nil:
		if err = that.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return fmt.Errorf("failed to write %s message: %w", msgType, err)
		}
	case that.status == entity.StatusConnecting:
		that.pending = append(that.pending, message)
	default:
		that.logger.Debug("dropping message without transport", "type", msgType)
	}

	return nil
}

// Close hangs up deliberately: the queue is discarded without flushing and
// the read loop stays silent instead of reporting a dropped link.
func (that *Client) Close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.manualClose = true
	that.pending = nil

	if that.conn != nil {
		that.conn.Close()
		that.conn = nil
	}

	that.status = entity.StatusDisconnected
}

// Status reports the current connection status. Owned here, read-only
// everywhere else.
func (that *Client) Status() entity.ConnectionStatus {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.status
}

// ErrorMessage is the human-readable description of the last connection
// failure, empty when none.
func (that *Client) ErrorMessage() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.errMessage
}

// Messages is the inbound channel of raw text frames, in arrival order.
func (that *Client) Messages() <-chan string {
	return that.inbound
}

// readLoop pumps inbound frames into the message channel until the
// connection dies, then records why.
func (that *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			that.handleClosed(conn, err)
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		that.inbound <- string(data)
	}
}

func (that *Client) handleClosed(conn *websocket.Conn, err error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.conn != conn {
		// a newer Connect already replaced this transport
		return
	}
	that.conn = nil

	if that.manualClose {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		// the peer hung up; not an error, reconnection stays possible
		that.status = entity.StatusDisconnected
		that.logger.Debug("connection closed by peer", "code", closeErr.Code)
		return
	}

	that.status = entity.StatusError
	that.errMessage = "connection interrupted"
	that.logger.Debug("connection lost", "error", err)
}

func (that *Client) fail(message string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.status = entity.StatusError
	that.errMessage = message
}

// attachTicket appends the connection ticket as a query parameter. An empty
// ticket leaves the url untouched.
func attachTicket(serverURL, ticket string) (string, error) {
	if ticket == "" {
		return serverURL, nil
	}

	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", serverURL, err)
	}

	query := parsed.Query()
	query.Set("ticket", ticket)
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
