package search

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fhirstore/internal/fhirerr"
)

// cursorKey is the keyset position of the last row returned on a page: the
// (last_updated, id) tuple of that row. Encoding the tuple instead of a row
// offset keeps pages stable under concurrent inserts -- a row inserted
// ahead of the cursor never shifts where any other row falls, unlike
// OFFSET, which renumbers every row after the insert point.
type cursorKey struct {
	lastUpdated time.Time
	id          string
}

func (k cursorKey) isZero() bool {
	return k.lastUpdated.IsZero() && k.id == ""
}

// encodeCursor packs a cursorKey into an opaque, URL-safe token. Clients
// are never meant to interpret it, only round-trip it via _cursor.
func encodeCursor(k cursorKey) string {
	raw := fmt.Sprintf("%d|%s", k.lastUpdated.UnixNano(), k.id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a cursor produced by encodeCursor. An empty cursor
// decodes to the zero cursorKey, which callers treat as "no keyset bound,
// start from the first page".
func decodeCursor(cursor string) (cursorKey, error) {
	if cursor == "" {
		return cursorKey{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return cursorKey{}, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-cursor", "search cursor is not valid")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return cursorKey{}, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-cursor", "search cursor is not valid")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return cursorKey{}, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-cursor", "search cursor is not valid")
	}
	return cursorKey{lastUpdated: time.Unix(0, nanos).UTC(), id: parts[1]}, nil
}

// BundleLinks computes the self/first/next link set for a page, given the
// base request URL (without _cursor) and the result just fetched. Keyset
// pagination has no "jump back by _count rows" operation the way OFFSET
// does -- a page doesn't know its own position in the result set -- so
// there is no previous link; clients page forward only, re-issuing the
// original query with no cursor to get back to the first page.
func BundleLinks(baseURL string, q *Query, result *Result) map[string]string {
	self := fmt.Sprintf("%s&_count=%d", baseURL, q.Count)
	if q.Cursor != "" {
		self += "&_cursor=" + q.Cursor
	}
	links := map[string]string{
		"self":  self,
		"first": fmt.Sprintf("%s&_count=%d", baseURL, q.Count),
	}
	if result.NextCursor != "" {
		links["next"] = fmt.Sprintf("%s&_count=%d&_cursor=%s", baseURL, q.Count, result.NextCursor)
	}
	return links
}
