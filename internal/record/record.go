// Package record implements the on-disk layout of a single Bitcask record
// and its hint-file counterpart. It is pure: no I/O, no clock, no locking.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the fixed width of a record header: crc(4) + timestamp(8) +
// key_size(2) + value_size(4).
const HeaderSize = 4 + 8 + 2 + 4

// HintHeaderSize is the fixed width of a hint entry header: timestamp(8) +
// key_size(2) + value_size(4) + value_offset(8).
const HintHeaderSize = 8 + 2 + 4 + 8

// Tombstone is the value_size sentinel that marks a record as a deletion.
const Tombstone = math.MaxUint32

// MaxKeySize is the largest key a record may carry (2^16 - 1 bytes).
const MaxKeySize = math.MaxUint16

// MaxValueSize is the largest value a record may carry; one value of the
// 32-bit size space is reserved for the tombstone sentinel.
const MaxValueSize = math.MaxUint32 - 1

// ErrCorruptRecord indicates a record's CRC did not verify, or its framing
// was truncated before a full header/key/value could be read.
var ErrCorruptRecord = errors.New("record: corrupt record")

// ErrKeyTooLarge and ErrValueTooLarge guard the on-disk size fields.
var (
	ErrKeyTooLarge   = errors.New("record: key exceeds maximum size")
	ErrValueTooLarge = errors.New("record: value exceeds maximum size")
	ErrEmptyKey      = errors.New("record: key must not be empty")
)

// Record is the decoded form of a single on-disk entry.
type Record struct {
	CRC       uint32
	Timestamp int64
	Key       []byte
	Value     []byte // nil for tombstones
	Tombstone bool
}

// Encode serializes key/value (or a tombstone, when value is nil and
// tombstone is true) into its on-disk big-endian byte layout.
func Encode(key, value []byte, timestamp int64, tombstone bool) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if len(key) > MaxKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeyTooLarge, len(key))
	}
	if !tombstone && len(value) > MaxValueSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(value))
	}

	valueSize := uint32(len(value))
	if tombstone {
		valueSize = Tombstone
		value = nil
	}

	buf := make([]byte, HeaderSize+len(key)+len(value))
	binary.BigEndian.PutUint64(buf[4:12], uint64(timestamp))
	binary.BigEndian.PutUint16(buf[12:14], uint16(len(key)))
	binary.BigEndian.PutUint32(buf[14:18], valueSize)
	copy(buf[HeaderSize:], key)
	copy(buf[HeaderSize+len(key):], value)

	crc := checksum(buf[4:])
	binary.BigEndian.PutUint32(buf[0:4], crc)

	return buf, nil
}

// DecodeHeader parses the fixed-width header and reports the key/value
// sizes a caller must read next. It does not verify the CRC, since the key
// and value bytes have not been read yet.
type Header struct {
	CRC       uint32
	Timestamp int64
	KeySize   uint16
	ValueSize uint32
	Tombstone bool
}

func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header", ErrCorruptRecord)
	}

	valueSize := binary.BigEndian.Uint32(buf[14:18])

	return Header{
		CRC:       binary.BigEndian.Uint32(buf[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(buf[4:12])),
		KeySize:   binary.BigEndian.Uint16(buf[12:14]),
		ValueSize: valueSize,
		Tombstone: valueSize == Tombstone,
	}, nil
}

// Decode parses a complete record (header + key + value) from buf and
// verifies its CRC. buf must contain exactly the record's bytes.
func Decode(buf []byte) (Record, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Record{}, err
	}

	valueLen := int(h.ValueSize)
	if h.Tombstone {
		valueLen = 0
	}

	want := HeaderSize + int(h.KeySize) + valueLen
	if len(buf) < want {
		return Record{}, fmt.Errorf("%w: truncated body", ErrCorruptRecord)
	}

	key := buf[HeaderSize : HeaderSize+int(h.KeySize)]
	value := buf[HeaderSize+int(h.KeySize) : want]

	crc := checksum(buf[4:want])
	if crc != h.CRC {
		return Record{}, fmt.Errorf("%w: crc mismatch", ErrCorruptRecord)
	}

	rec := Record{
		CRC:       h.CRC,
		Timestamp: h.Timestamp,
		Key:       append([]byte(nil), key...),
		Tombstone: h.Tombstone,
	}
	if !h.Tombstone {
		rec.Value = append([]byte(nil), value...)
	}

	return rec, nil
}

// Size returns the total on-disk byte length of a record with the given key
// and value sizes (value size is ignored for tombstones).
func Size(keySize int, valueSize int, tombstone bool) int {
	if tombstone {
		return HeaderSize + keySize
	}
	return HeaderSize + keySize + valueSize
}

// HintEntry is the decoded form of a single hint-file entry. Hint entries
// never describe tombstones: their presence implies the paired segment
// holds a live record for Key.
type HintEntry struct {
	Timestamp   int64
	ValueSize   uint32
	ValueOffset int64
	Key         []byte
}

// EncodeHint serializes a single hint entry.
func EncodeHint(h HintEntry) []byte {
	buf := make([]byte, HintHeaderSize+len(h.Key))
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.Timestamp))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(h.Key)))
	binary.BigEndian.PutUint32(buf[10:14], h.ValueSize)
	binary.BigEndian.PutUint64(buf[14:22], uint64(h.ValueOffset))
	copy(buf[HintHeaderSize:], h.Key)
	return buf
}

// DecodeHintHeader parses the fixed-width hint header and reports the key
// size a caller must read next.
type HintHeader struct {
	Timestamp   int64
	KeySize     uint16
	ValueSize   uint32
	ValueOffset int64
}

func DecodeHintHeader(buf []byte) (HintHeader, error) {
	if len(buf) < HintHeaderSize {
		return HintHeader{}, fmt.Errorf("%w: short hint header", ErrCorruptRecord)
	}
	return HintHeader{
		Timestamp:   int64(binary.BigEndian.Uint64(buf[0:8])),
		KeySize:     binary.BigEndian.Uint16(buf[8:10]),
		ValueSize:   binary.BigEndian.Uint32(buf[10:14]),
		ValueOffset: int64(binary.BigEndian.Uint64(buf[14:22])),
	}, nil
}
