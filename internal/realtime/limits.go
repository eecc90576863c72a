package realtime

import "time"

// Transport guardrails for the websocket gateway.
const (
	// maxFrameBytes bounds a single inbound websocket frame. Payload-level
	// body length is enforced by the chat service; this guards the transport.
	maxFrameBytes = 64 * 1024

	// sendQueueSize bounds the per-client outbound queue. A full queue drops
	// events rather than blocking room broadcasts.
	sendQueueSize = 128

	// heartbeatInterval and heartbeatTimeout drive server-side pings so dead
	// connections are reaped even when the peer never closes cleanly.
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// writeTimeout bounds a single outbound frame write.
	writeTimeout = 10 * time.Second

	// rateLimitEvents / rateLimitWindow bound inbound event volume per
	// connection.
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
