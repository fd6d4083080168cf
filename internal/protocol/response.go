package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
)

// EncodeResponse serializes resp as a length-prefixed response frame:
// <resp_len:u32><resp bytes>, big-endian.
func EncodeResponse(resp string) ([]byte, error) {
	respB := []byte(resp)

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(respB))); err != nil {
		return nil, err
	}
	buf.Write(respB)

	return buf.Bytes(), nil
}

// DecodeResponse reads one response frame from r.
func DecodeResponse(r io.Reader) (string, error) {
	var respLen uint32
	if err := binary.Read(r, binary.BigEndian, &respLen); err != nil {
		return "", err
	}

	buf := make([]byte, respLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}
