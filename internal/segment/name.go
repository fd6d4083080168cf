package segment

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DataSuffix and HintSuffix name the two file kinds that belong to a
// segment id.
const (
	DataSuffix = ".data"
	HintSuffix = ".hint"
)

// DataPath and HintPath build the full path for a segment id's files.
func DataPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%016x%s", id, DataSuffix))
}

func HintPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%016x%s", id, HintSuffix))
}

// ParseID extracts the segment id from a 16-hex-digit file name, e.g.
// "000000000000002a.data" -> 42. ok is false for names that don't match
// this store's naming convention.
func ParseID(name string) (id uint64, ok bool) {
	var base string
	switch {
	case strings.HasSuffix(name, DataSuffix):
		base = strings.TrimSuffix(name, DataSuffix)
	case strings.HasSuffix(name, HintSuffix):
		base = strings.TrimSuffix(name, HintSuffix)
	default:
		return 0, false
	}

	if len(base) != 16 {
		return 0, false
	}

	v, err := strconv.ParseUint(base, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
