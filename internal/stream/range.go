package stream

import (
	"errors"
	"path"
	"strconv"
	"strings"
)

// DefaultChunkSize bounds the response to an open-ended range request
const DefaultChunkSize int64 = 1_000_000

var ErrInvalidRange = errors.New("invalid or unsatisfiable range")

// ByteRange is an inclusive byte interval of an object
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ParseRange interprets a single "bytes=<start>-[<end>]" header against an
// object of size bytes. An open end serves at most DefaultChunkSize bytes and
// an end past the object is clamped. Suffix and multi-part ranges are not
// supported.
func ParseRange(header string, size int64) (ByteRange, error) {
	const unit = "bytes="
	if !strings.HasPrefix(header, unit) {
		return ByteRange{}, ErrInvalidRange
	}
	rangeSpec := strings.TrimSpace(header[len(unit):])
	if strings.Contains(rangeSpec, ",") {
		return ByteRange{}, ErrInvalidRange
	}

	startStr, endStr, ok := strings.Cut(rangeSpec, "-")
	if !ok {
		return ByteRange{}, ErrInvalidRange
	}
	start, ok := parseOffset(strings.TrimSpace(startStr))
	if !ok || start >= size {
		return ByteRange{}, ErrInvalidRange
	}

	endStr = strings.TrimSpace(endStr)
	if endStr == "" {
		return ByteRange{Start: start, End: min(start+DefaultChunkSize-1, size-1)}, nil
	}
	end, ok := parseOffset(endStr)
	if !ok || end < start {
		return ByteRange{}, ErrInvalidRange
	}
	return ByteRange{Start: start, End: min(end, size-1)}, nil
}

func parseOffset(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
}

// ResolveContentType prefers the type recorded by the object store and falls
// back to the key's extension when that type is missing or generic.
func ResolveContentType(declared, key string) string {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "", "application/octet-stream", "binary/octet-stream":
	default:
		return declared
	}
	if ct, ok := extensionTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return "video/mp4"
}
