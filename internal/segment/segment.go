// Package segment implements the append-only segment file: a single data
// file holding a contiguous run of Bitcask records, either active
// (appendable) or sealed (immutable, merge-eligible).
package segment

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kvforge/bitcask/internal/record"
)

// ErrSealed is returned by Append when called against a sealed segment.
var ErrSealed = errors.New("segment: cannot append to a sealed segment")

// Segment is a single on-disk data file plus its tracked size.
type Segment struct {
	ID     uint64
	Path   string
	file   *os.File
	size   int64
	sealed bool
}

// OpenActive creates (or reopens) the segment file for a fresh active
// segment, writable and readable, and seeks to its current end.
func OpenActive(id uint64, path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: open active %d: %w", id, err)
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: seek active %d: %w", id, err)
	}

	return &Segment{ID: id, Path: path, file: f, size: size}, nil
}

// OpenSealed opens an existing segment file read-only and reports its
// current size.
func OpenSealed(id uint64, path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: open sealed %d: %w", id, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: stat sealed %d: %w", id, err)
	}

	return &Segment{ID: id, Path: path, file: f, size: fi.Size(), sealed: true}, nil
}

// Size reports the tracked size of the segment, updated only after a
// successful Append.
func (s *Segment) Size() int64 { return s.size }

// Sealed reports whether the segment is immutable.
func (s *Segment) Sealed() bool { return s.sealed }

// Fits reports whether a record of recordSize bytes can be appended without
// pushing the segment past threshold.
func (s *Segment) Fits(recordSize int, threshold int64) bool {
	return s.size+int64(recordSize) <= threshold
}

// Append writes recordBytes to the end of the segment and returns the byte
// offset at which the record begins; callers add the header-plus-key length
// to it to get the value offset. The tracked size is advanced only once the
// write succeeds.
func (s *Segment) Append(recordBytes []byte) (recordOffset int64, err error) {
	if s.sealed {
		return 0, ErrSealed
	}

	off := s.size
	n, err := s.file.WriteAt(recordBytes, off)
	if err != nil {
		return 0, fmt.Errorf("segment: append to %d: %w", s.ID, err)
	}
	if n != len(recordBytes) {
		return 0, fmt.Errorf("segment: short append to %d: wrote %d of %d bytes", s.ID, n, len(recordBytes))
	}

	s.size = off + int64(n)
	return off, nil
}

// ReadValue performs a positional read of exactly valueSize bytes starting
// at valueOffset.
func (s *Segment) ReadValue(valueOffset int64, valueSize uint32) ([]byte, error) {
	buf := make([]byte, valueSize)
	if _, err := s.file.ReadAt(buf, valueOffset); err != nil {
		return nil, fmt.Errorf("segment: read value in %d at %d: %w", s.ID, valueOffset, err)
	}
	return buf, nil
}

// ReadAt performs a positional read of exactly len(buf) bytes.
func (s *Segment) ReadAt(buf []byte, offset int64) (int, error) {
	return s.file.ReadAt(buf, offset)
}

// Seal marks the segment immutable. The underlying handle is left open for
// reads; writers must stop calling Append after Seal returns.
func (s *Segment) Seal() {
	s.sealed = true
}

// Sync flushes the segment to stable storage.
func (s *Segment) Sync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("segment: sync %d: %w", s.ID, err)
	}
	return nil
}

// Close releases the segment's file handle.
func (s *Segment) Close() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("segment: close %d: %w", s.ID, err)
	}
	return nil
}

// Truncate truncates the segment file to offset, syncs the truncation, and
// sets the tracked size to offset.
func (s *Segment) Truncate(offset int64) error {
	if err := s.file.Truncate(offset); err != nil {
		return fmt.Errorf("segment: truncate %d to %d: %w", s.ID, offset, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("segment: sync after truncate %d: %w", s.ID, err)
	}
	s.size = offset
	return nil
}

// Entry is one record surfaced by Iterate, along with its physical
// placement within the segment.
type Entry struct {
	Record       record.Record
	RecordOffset int64
	ValueOffset  int64
	RecordSize   int
}

// Iterate reads every well-formed record from the start of the segment in
// order, calling fn for each. Iteration stops at end-of-file, or at the
// first corrupt record: fn is not called for the corrupt record, and
// Iterate returns (lastGoodOffset, false, nil) so the caller can decide
// whether a truncated tail is acceptable (highest-id segment) or fatal
// (any other segment).
func (s *Segment) Iterate(fn func(Entry) error) (lastGoodOffset int64, clean bool, err error) {
	var offset int64

	header := make([]byte, record.HeaderSize)

	for {
		n, rerr := s.file.ReadAt(header, offset)
		if rerr != nil && rerr != io.EOF {
			return offset, false, fmt.Errorf("segment: read header in %d at %d: %w", s.ID, offset, rerr)
		}
		if n < record.HeaderSize {
			// EOF exactly on a record boundary is clean; a short header
			// read mid-record is a torn tail write.
			return offset, n == 0, nil
		}

		hdr, herr := record.DecodeHeader(header)
		if herr != nil {
			return offset, false, nil
		}

		valueLen := int(hdr.ValueSize)
		if hdr.Tombstone {
			valueLen = 0
		}
		recSize := record.HeaderSize + int(hdr.KeySize) + valueLen

		full := make([]byte, recSize)
		if _, rerr := s.file.ReadAt(full, offset); rerr != nil {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				return offset, false, nil
			}
			return offset, false, fmt.Errorf("segment: read record in %d at %d: %w", s.ID, offset, rerr)
		}

		rec, derr := record.Decode(full)
		if derr != nil {
			return offset, false, nil
		}

		valueOffset := offset + int64(record.HeaderSize+int(hdr.KeySize))
		if err := fn(Entry{Record: rec, RecordOffset: offset, ValueOffset: valueOffset, RecordSize: recSize}); err != nil {
			return offset, false, err
		}

		offset += int64(recSize)
	}
}
