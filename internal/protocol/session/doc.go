// Package session owns the stdio transport between a controlling process and
// one worker process.
//
// Ownership boundary:
// - worker.hello / worker.hello.ack control messages (JSON lines)
// - request and response frame codecs
// - worker-side Conn (implements worker.Transport)
// - caller-side Client with in-flight call tracking
//
// Stream order:
// - worker writes hello -> caller writes ack -> framed requests and responses
//
// Frames are framed by internal/protocol/frame, payload fields by
// internal/protocol/tlv, argument and result values by internal/codec.
package session
