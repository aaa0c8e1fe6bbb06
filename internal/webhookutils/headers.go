package webhookutils

import (
	"net/http"
	"strings"
)

// HeaderValue retrieves a header value using case-insensitive key matching.
// http.Header.Get only finds canonicalized keys (X-GitHub-Event is stored as
// X-Github-Event); deliveries relayed through proxies that set keys directly
// can carry arbitrary casing.
func HeaderValue(headers http.Header, key string) string {
	if v := headers.Get(key); v != "" {
		return v
	}
	for k, vs := range headers {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}
