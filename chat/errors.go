package chat

import "errors"

var (
	// ErrDisconnected completes every outstanding command when the transport
	// fails. The transport error is wrapped alongside it.
	ErrDisconnected = errors.New("chat disconnected")

	// ErrShutdown completes every outstanding command when the chat is shut
	// down by its owner.
	ErrShutdown = errors.New("chat shut down")

	// ErrClosed is returned by Exec when the chat no longer accepts commands.
	ErrClosed = errors.New("chat closed")

	// ErrFrameTooLong is logged when the modem sends a long run of bytes
	// without a frame boundary, as on a noisy line. The bytes are dropped.
	ErrFrameTooLong = errors.New("frame too long")
)
