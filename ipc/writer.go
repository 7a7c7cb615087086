package ipc

import (
	"errors"
	"net"
	"time"

	"hubd/component"
	"hubd/treeerr"
)

// writeAttemptDeadline bounds a single outbound write attempt. Go's
// stream-socket Write doesn't surface EWOULDBLOCK directly the way a
// raw non-blocking fd would; a short deadline plus net.Error.Timeout()
// is this codebase's stand-in for "the kernel send buffer is full,
// don't wait" (§5: one attempt, no blocking).
const writeAttemptDeadline = 50 * time.Millisecond

// ConnWriter adapts a net.Conn into tree.Writer: one attempt per
// WriteFrame, WouldBlock on timeout or any write error (§5, §7 — IPC
// write backpressure is fatal for that extension).
type ConnWriter struct {
	conn net.Conn
}

// NewConnWriter wraps conn as a tree.Writer.
func NewConnWriter(conn net.Conn) *ConnWriter {
	return &ConnWriter{conn: conn}
}

// WriteFrame implements tree.Writer.
func (w *ConnWriter) WriteFrame(payload []byte) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeAttemptDeadline))
	defer w.conn.SetWriteDeadline(time.Time{})

	_, err := w.conn.Write(payload)
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return treeerr.ErrWouldBlock
	}
	return treeerr.ErrWouldBlock
}

// BuildWriteFrame builds the wire bytes for a core-issued component write:
// a varint entity index addressed within the target device, followed by
// the component's length-delimited payload, framed under the
// WRITE_COMPONENT-derived command tag for its type. This mirrors the
// inbound REGISTER_ENTITY addressing scheme for symmetry (see DESIGN.md).
func BuildWriteFrame(entityIndex uint32, c component.Component) []byte {
	payload := PutVarint(nil, entityIndex)
	payload = append(payload, EncodeComponent(c)...)

	var tagBuf []byte
	tagBuf = PutVarint(tagBuf, uint32(WriteComponentTag(c.Type)))

	frame := PutVarint(nil, uint32(len(tagBuf)+len(payload)))
	frame = append(frame, tagBuf...)
	frame = append(frame, payload...)
	return frame
}
