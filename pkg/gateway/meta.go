package gateway

import (
	"net/http"
	"strings"
)

const (
	metaQueryPrefixAmazon = "x-amz-meta-"
	metaQueryPrefixNative = "__nimbus_io__"
)

// buildMetaDict collects user metadata from query parameters, rewriting
// the `x-amz-meta-` prefix to `__nimbus_io__` on ingress per spec §6, so
// that archive_final's Meta map carries one canonical key spelling
// regardless of which prefix the client used.
func buildMetaDict(r *http.Request) map[string]string {
	meta := make(map[string]string)
	for k, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(k, metaQueryPrefixAmazon):
			suffix := k[len(metaQueryPrefixAmazon):]
			meta[metaQueryPrefixNative+suffix] = values[0]
		case strings.HasPrefix(k, metaQueryPrefixNative):
			meta[k] = values[0]
		}
	}
	return meta
}
