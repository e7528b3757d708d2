package session

import (
	"time"

	"github.com/danmuck/edgeworker/internal/protocol/frame"
)

// ProtocolVersion is announced in worker.hello.
const ProtocolVersion uint16 = 1

// Config defines transport limits and timeouts for both ends of a session.
type Config struct {
	HandshakeTimeout time.Duration
	// CallTimeout bounds one Client call when ctx has no deadline; zero waits
	// for the response or the end of the stream.
	CallTimeout     time.Duration
	MaxPayloadBytes uint64
	MaxAuthBytes    uint64
}

func DefaultConfig() Config {
	limits := frame.DefaultLimits()
	return Config{
		HandshakeTimeout: 5 * time.Second,
		MaxPayloadBytes:  limits.MaxPayloadBytes,
		MaxAuthBytes:     limits.MaxAuthBytes,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.CallTimeout < 0 {
		c.CallTimeout = 0
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = def.MaxPayloadBytes
	}
	if c.MaxAuthBytes == 0 {
		c.MaxAuthBytes = def.MaxAuthBytes
	}
	return c
}

func (c Config) Limits() frame.Limits {
	return frame.Limits{
		MaxAuthBytes:    c.MaxAuthBytes,
		MaxPayloadBytes: c.MaxPayloadBytes,
	}
}
