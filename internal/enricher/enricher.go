// Package enricher derives attribution and client context for analytics
// events from the inbound request.
package enricher

import (
	"net/netip"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bazaarly/analytics/internal/model"
)

const maxMetaLength = 500

// Request header, query and cookie names read by the enricher.
const (
	CookieSession = "session_id"

	HeaderUserAgent = "User-Agent"
	HeaderReferer   = "Referer"
	HeaderCountry   = "CF-IPCountry"
	HeaderSession   = "X-Session-ID"

	QuerySession  = "session_id"
	QuerySource   = "utm_source"
	QueryMedium   = "utm_medium"
	QueryCampaign = "utm_campaign"
)

// Enricher builds model.EventContext values. It never returns an error:
// anything it cannot determine is left empty.
type Enricher struct {
	geo GeoProvider
	now func() time.Time
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithClock overrides the clock used for fingerprint salts.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// New creates an Enricher. A nil provider falls back to PlaceholderGeo.
func New(geo GeoProvider, opts ...Option) *Enricher {
	if geo == nil {
		geo = PlaceholderGeo{}
	}
	e := &Enricher{geo: geo, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich derives the event context from rc. A nil rc yields an empty context.
func (e *Enricher) Enrich(rc *model.RequestContext) model.EventContext {
	if rc == nil {
		return model.EventContext{}
	}

	ua := TruncateUserAgent(rc.Header(HeaderUserAgent))
	ctx := model.EventContext{
		Source:    truncate(rc.QueryParam(QuerySource)),
		Medium:    truncate(rc.QueryParam(QueryMedium)),
		Campaign:  truncate(rc.QueryParam(QueryCampaign)),
		IPAddress: clientIP(rc.ClientIP),
		UserAgent: ua,
		Referrer:  SanitizeReferrer(rc.Header(HeaderReferer)),
		Device:    ClassifyDevice(ua),
		Browser:   ClassifyBrowser(ua),
		OS:        ClassifyOS(ua),
	}

	ctx.Country, ctx.City = e.geo.Lookup(rc.ClientIP)
	if cc := ExtractCountryCode(rc.Header(HeaderCountry)); cc != "" {
		ctx.Country = cc
	}

	ctx.SessionID = e.sessionID(rc, ua)
	return ctx
}

// sessionID prefers an explicit id and falls back to a daily fingerprint.
func (e *Enricher) sessionID(rc *model.RequestContext, ua string) string {
	for _, candidate := range []string{
		rc.SessionID,
		rc.Header(HeaderSession),
		rc.QueryParam(QuerySession),
	} {
		if s := truncate(strings.TrimSpace(candidate)); s != "" {
			return s
		}
	}
	if rc.ClientIP == "" && ua == "" {
		return ""
	}
	return Fingerprint(rc.ClientIP, ua, e.now())
}

// SanitizeReferrer strips query and fragment from a referrer URL and caps
// its length. Unparseable input yields "".
func SanitizeReferrer(ref string) string {
	if ref == "" {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return truncate(parsed.String())
}

// TruncateUserAgent caps a user agent at 500 bytes and drops anything
// that cannot be stored as text.
func TruncateUserAgent(ua string) string {
	return truncate(ua)
}

// ExtractCountryCode returns an upper-cased country code from the Cloudflare
// header, or "" if it is missing or malformed.
func ExtractCountryCode(cfIPCountry string) string {
	if len(cfIPCountry) != 2 {
		return ""
	}
	code := strings.ToUpper(cfIPCountry)
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return ""
		}
	}
	return code
}

// truncate makes client-supplied text storable and caps it at
// maxMetaLength bytes without splitting a rune. Invalid UTF-8 and NUL
// characters are dropped.
func truncate(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= maxMetaLength {
		return s
	}
	cut := maxMetaLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// clientIP keeps only well-formed addresses; a forwarded header can carry
// anything.
func clientIP(raw string) string {
	if _, err := netip.ParseAddr(raw); err != nil {
		return ""
	}
	return raw
}
