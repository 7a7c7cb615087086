package ipc

import (
	"bytes"
	"encoding/binary"
	"io"

	"hubd/treeerr"
)

// Frame is one decoded IPC message: a command tag and its payload (§6.1).
type Frame struct {
	Command CommandTag
	Payload []byte
}

// ReadFrame decodes one complete frame from r: a varu32 length (covering
// the command tag plus payload), a varu16 command tag, and the remaining
// payload bytes. A short read of any kind is reported as
// treeerr.ErrMalformedFrame so the caller can detach the extension rather
// than propagate an opaque I/O error.
func ReadFrame(r io.Reader) (Frame, error) {
	length, err := ReadVarint(r)
	if err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, treeerr.ErrMalformedFrame
	}
	if length < 1 {
		return Frame{}, treeerr.ErrMalformedFrame
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, treeerr.ErrMalformedFrame
	}

	tag, n, err := DecodeVarint(body)
	if err != nil {
		return Frame{}, treeerr.ErrMalformedFrame
	}
	return Frame{Command: CommandTag(tag), Payload: body[n:]}, nil
}

// WriteFrame encodes f as a single varu32-length-prefixed frame and writes
// it to w in one call, matching the "one attempt, no partial frame" write
// discipline §5 requires of extension sockets.
func WriteFrame(w io.Writer, f Frame) error {
	var tagBuf []byte
	tagBuf = PutVarint(tagBuf, uint32(f.Command))

	var out bytes.Buffer
	out = *bytes.NewBuffer(PutVarint(nil, uint32(len(tagBuf)+len(f.Payload))))
	out.Write(tagBuf)
	out.Write(f.Payload)

	_, err := w.Write(out.Bytes())
	return err
}

// PutUint32Prefixed appends a u32-length-prefixed UTF-8 string, matching
// §6.1's "strings are u32 length-prefixed UTF-8".
func PutUint32Prefixed(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

// ReadUint32Prefixed reads a u32-length-prefixed UTF-8 string from the
// front of buf, returning the string and the remaining bytes.
func ReadUint32Prefixed(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, treeerr.ErrMalformedFrame
	}
	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return "", nil, treeerr.ErrMalformedFrame
	}
	return string(buf[:n]), buf[n:], nil
}
