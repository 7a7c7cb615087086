package client

import (
	"encoding/binary"
	"encoding/json"
	"io"
)

// maxMessageBytes bounds a single client message, guarding against a
// hostile or buggy client claiming an enormous length prefix.
const maxMessageBytes = 16 << 20

// readMessage reads one length-delimited JSON message from r and decodes
// it into v.
func readMessage(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxMessageBytes {
		return io.ErrUnexpectedEOF
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// writeMessage encodes v as JSON and writes it to w as one length-delimited
// message.
func writeMessage(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
