package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any cursor query can request.
	MaxLimit = 100
	// DefaultPage is the first page of offset queries.
	DefaultPage = 1
)

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer returns the normalized limit plus one row used to detect a
// following page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Page is an offset pagination window (1-based page numbers).
type Page struct {
	Number int
	Size   int
}

// NewPage normalizes a page number and size.
func NewPage(number, size int) Page {
	if number < DefaultPage {
		number = DefaultPage
	}
	return Page{Number: number, Size: NormalizeLimit(size)}
}

// Offset returns how many rows precede the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// TotalPages returns the page count needed for total rows.
func (p Page) TotalPages(total int64) int {
	if total <= 0 || p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// EncodeSequenceCursor encodes a per-aggregate sequence position.
func EncodeSequenceCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte("seq:" + strconv.FormatInt(seq, 10)))
}

// ParseSequenceCursor decodes a cursor built by EncodeSequenceCursor. An empty
// value yields 0 with ok=false.
func ParseSequenceCursor(value string) (seq int64, ok bool, err error) {
	if strings.TrimSpace(value) == "" {
		return 0, false, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, false, fmt.Errorf("decode cursor: %w", err)
	}
	raw, found := strings.CutPrefix(string(decoded), "seq:")
	if !found {
		return 0, false, fmt.Errorf("invalid cursor format")
	}
	seq, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return 0, false, fmt.Errorf("invalid cursor sequence")
	}
	return seq, true, nil
}
