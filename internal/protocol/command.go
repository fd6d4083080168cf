// Package protocol implements the length-prefixed wire format used by the
// bitcaskd daemon and its client.
package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Command represents a decoded client command received by the daemon.
//
// A Command consists of a command name (Cmd), an optional key, and an
// optional value. The meaning of Key and Val depends on the command (e.g.
// GET, SET, DELETE).
type Command struct {
	Cmd string
	Key string
	Val string
}

// EncodeCommand serializes a client command into its wire format:
//
//	<cmd_len:u8><key_len:u32><val_len:u32><cmd bytes><key bytes><val bytes>
//
// All integer fields are big-endian. The command name length is limited to
// 255 bytes.
func EncodeCommand(cmd, key, val string) ([]byte, error) {
	cmdB := []byte(cmd)
	keyB := []byte(key)
	valB := []byte(val)

	buf := &bytes.Buffer{}
	buf.WriteByte(uint8(len(cmdB)))
	if err := binary.Write(buf, binary.BigEndian, uint32(len(keyB))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(valB))); err != nil {
		return nil, err
	}
	buf.Write(cmdB)
	buf.Write(keyB)
	buf.Write(valB)

	return buf.Bytes(), nil
}

// DecodeCommand reads and decodes one command frame from r. It blocks until
// the full command has been read or an error occurs.
func DecodeCommand(r io.Reader) (*Command, error) {
	var cmdLen uint8
	var keyLen, valLen uint32

	if err := binary.Read(r, binary.BigEndian, &cmdLen); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &valLen); err != nil {
		return nil, err
	}

	cmdB := make([]byte, cmdLen)
	keyB := make([]byte, keyLen)
	valB := make([]byte, valLen)

	if _, err := io.ReadFull(r, cmdB); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, keyB); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, valB); err != nil {
		return nil, err
	}

	return &Command{Cmd: string(cmdB), Key: string(keyB), Val: string(valB)}, nil
}
