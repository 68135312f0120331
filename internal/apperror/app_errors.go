package apperror

import "errors"

var (
	ErrNothingToReconnect = errors.New("no session to reconnect")
	ErrNotInRoom          = errors.New("not in a room")
	ErrSpectator          = errors.New("spectators cannot play")
	ErrNotConnected       = errors.New("not connected to the server")
	ErrNoAccessToken      = errors.New("no access token available")
)
