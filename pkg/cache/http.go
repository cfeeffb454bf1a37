package cache

import (
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ETag derives a weak entity tag for a response built from snap. parts
// distinguish responses cut from the same snapshot (page, limit).
func ETag(snap *Snapshot, parts ...string) string {
	if snap == nil {
		return ""
	}
	h := fnv.New64a()
	io.WriteString(h, snap.Key)
	io.WriteString(h, strconv.FormatInt(snap.BuiltAt.UnixNano(), 10))
	for _, p := range parts {
		io.WriteString(h, "|")
		io.WriteString(h, p)
	}
	return fmt.Sprintf(`W/"%x"`, h.Sum64())
}

// NotModified reports whether the request's If-None-Match matches etag.
func NotModified(r *http.Request, etag string) bool {
	if etag == "" || r == nil {
		return false
	}
	header := r.Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(etag, "W/") {
			NotModifiedResponses.Inc()
			return true
		}
	}
	return false
}
