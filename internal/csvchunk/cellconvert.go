package csvchunk

import (
	"fmt"
	"strings"
	"time"
)

// CellToString applies the worker's cell-conversion policy: nil becomes
// an empty field (never the string "None"/"<nil>"), time values render as
// RFC 3339, byte slices decode as UTF-8 with U+FFFD replacement for
// invalid sequences, everything else falls back to its default string
// conversion.
func CellToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return strings.ToValidUTF8(string(t), "�")
	case time.Time:
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}
