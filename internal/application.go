package application

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rocketscienceinc/tictactoe-client/internal/auth"
	"github.com/rocketscienceinc/tictactoe-client/internal/config"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/session"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/websocket"
)

var ErrServerURLNotFound = errors.New("server url is empty")

// RunApp - runs the application: wires the auth client, the connection
// manager and the session, then serves the interactive command loop until
// the user quits or a signal arrives.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	if conf.ServerURL == "" {
		return ErrServerURLNotFound
	}

	guestID, err := auth.LoadGuestID(conf.GuestIDFile)
	if err != nil {
		return fmt.Errorf("could not load guest id: %w", err)
	}

	authClient := auth.NewClient(logger, conf.APIBaseURL, conf.RefreshToken)
	wsClient := websocket.New(logger, conf.ServerURL, authClient)
	sess := session.New(logger, wsClient, guestID)

	go sess.Run(ctx)

	runPrompt(ctx, cancel, log, conf, sess, authClient)

	sess.LeaveRoom()
	log.Info("Session closed, bye")

	return nil
}

// runPrompt reads commands from stdin and translates them into session
// intents. This is the whole view layer of the terminal client.
func runPrompt(ctx context.Context, cancel context.CancelFunc, log *slog.Logger, conf *config.Config, sess *session.Session, authClient *auth.Client) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("commands: create | join <code> | watch <code> | move <cell> | rematch | reconnect | state | stats | leave | quit")

	for {
		fmt.Print("> ")

		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := runCommand(ctx, log, conf, sess, authClient, line); quit {
				cancel()
				return
			}
		}
	}
}

func runCommand(ctx context.Context, log *slog.Logger, conf *config.Config, sess *session.Session, authClient *auth.Client, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}

	var err error

	switch args[0] {
	case "create":
		err = sess.CreateRoom(ctx, conf.PlayerName)
	case "join":
		if len(args) < 2 {
			fmt.Println("usage: join <code>")
			return false
		}
		err = sess.JoinRoom(ctx, args[1], conf.PlayerName, false)
	case "watch":
		if len(args) < 2 {
			fmt.Println("usage: watch <code>")
			return false
		}
		err = sess.JoinRoom(ctx, args[1], conf.PlayerName, true)
	case "reconnect":
		err = sess.Reconnect(ctx)
	case "move":
		if len(args) < 2 {
			fmt.Println("usage: move <cell>")
			return false
		}
		var cell int
		if cell, err = strconv.Atoi(args[1]); err == nil {
			err = sess.SendMove(cell)
		}
	case "rematch":
		err = sess.RequestRematch()
	case "state":
		printSnapshot(sess.Snapshot())
	case "stats":
		printStats(ctx, authClient)
	case "logout":
		err = authClient.Logout(ctx)
	case "leave":
		sess.LeaveRoom()
	case "quit", "exit":
		return true
	default:
		fmt.Println("unknown command:", args[0])
	}

	if err != nil {
		log.Error("command failed", "command", args[0], "error", err)
	}

	return false
}

func printSnapshot(snap session.Snapshot) {
	fmt.Printf("connection: %s", snap.ConnectionStatus)
	if snap.RoomCode != "" {
		fmt.Printf("  room: %s  role: %s", snap.RoomCode, snap.Role)
	}
	if snap.Symbol != "" {
		fmt.Printf("  playing as %s", snap.Symbol)
	}
	fmt.Println()

	if snap.ErrorMessage != "" {
		fmt.Println("notice:", snap.ErrorMessage)
	}
	if snap.RoomClosed {
		fmt.Println("room closed:", snap.RoomClosedReason)
	}

	if snap.Game != nil {
		printBoard(snap.Game)
	}
}

func printBoard(game *entity.GameState) {
	for i := 0; i+3 <= len(game.Board); i += 3 {
		row := make([]string, 0, 3)
		for _, cell := range game.Board[i : i+3] {
			if cell == entity.EmptyCell {
				cell = "."
			}
			row = append(row, cell)
		}
		fmt.Println(strings.Join(row, " "))
	}

	switch {
	case game.IsFinished() && game.Winner != "":
		fmt.Println("winner:", game.Winner)
	case game.IsFinished():
		fmt.Println("draw")
	case game.IsWaiting():
		fmt.Println("waiting for an opponent")
	default:
		fmt.Println("turn:", game.Turn)
	}
}

func printStats(ctx context.Context, authClient *auth.Client) {
	stats, err := authClient.Stats(ctx)
	if err != nil {
		fmt.Println("stats unavailable:", err)
		return
	}

	fmt.Printf("games: %d  wins: %d  losses: %d  draws: %d\n", stats.Total, stats.Wins, stats.Losses, stats.Draws)
}
