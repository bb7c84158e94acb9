package domain

import "github.com/gorilla/websocket"

// Close codes used by the relay. Everything other than CloseNormal is treated
// as abnormal by the client's reconnection logic.
const (
	CloseNormal       = websocket.CloseNormalClosure   // 1000, intentional
	CloseServerGoing  = websocket.CloseGoingAway       // 1001, server shutdown
	CloseRejected     = websocket.ClosePolicyViolation // 1008, join rejected
	CloseReplaced     = 4000                           // newer connection for the same participant
	ReasonMissingJoin = "missing required parameter"
	ReasonReplaced    = "replaced by a newer connection"
	ReasonShutdown    = "server shutting down"
)
