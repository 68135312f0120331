package entity

// ConnectionStatus is the lifecycle state of the single live transport. It is
// owned by the connection manager and mirrored read-only everywhere else.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)
