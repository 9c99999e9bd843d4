package handler

import (
	"net/http"

	"github.com/bazaarly/analytics/internal/enricher"
	"github.com/bazaarly/analytics/internal/middleware"
	"github.com/bazaarly/analytics/internal/model"
)

// requestContext copies the parts of r the enricher reads. Only the first
// value of each query parameter and header is kept. The session cookie,
// when present, is the explicit session id.
func requestContext(r *http.Request) *model.RequestContext {
	query := r.URL.Query()
	rc := &model.RequestContext{
		Query:    make(map[string]string, len(query)),
		Headers:  make(map[string]string, len(r.Header)),
		ClientIP: middleware.ClientIP(r),
	}
	if c, err := r.Cookie(enricher.CookieSession); err == nil {
		rc.SessionID = c.Value
	}
	for k, v := range query {
		if len(v) > 0 {
			rc.Query[k] = v[0]
		}
	}
	for k, v := range r.Header {
		if len(v) > 0 {
			rc.Headers[http.CanonicalHeaderKey(k)] = v[0]
		}
	}
	return rc
}
