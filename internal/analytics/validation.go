package analytics

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bazaarly/analytics/internal/model"
)

const (
	maxEventNameLength = 200
	maxProperties      = 64
)

// requiredProperties lists the payload keys each event type must carry.
// Types without an entry accept any payload.
var requiredProperties = map[model.EventType][]string{
	model.EventPageView:       {"page"},
	model.EventProductView:    {"product_id"},
	model.EventAddToCart:      {"product_id"},
	model.EventPurchase:       {"order_id"},
	model.EventFunnelStep:     {"funnel_id", "step_id"},
	model.EventLiveStreamView: {"stream_id"},
}

// ValidateProperties checks props against the schema of t.
func ValidateProperties(t model.EventType, props model.Properties) error {
	if len(props) > maxProperties {
		return invalid("properties", "at most %d keys allowed", maxProperties)
	}
	for _, key := range requiredProperties[t] {
		if !present(props[key]) {
			return invalid("properties."+key, "is required for %s", t)
		}
	}
	return checkValue("properties", map[string]any(props))
}

// storable reports whether s fits a Postgres text or jsonb value: valid
// UTF-8 with no NUL characters.
func storable(s string) bool {
	return utf8.ValidString(s) && strings.IndexByte(s, 0) < 0
}

func checkText(field, s string) error {
	if !storable(s) {
		return invalid(field, "must be valid UTF-8 without NUL characters")
	}
	return nil
}

// checkValue walks a decoded JSON value and rejects unstorable strings,
// including object keys.
func checkValue(field string, v any) error {
	switch val := v.(type) {
	case string:
		return checkText(field, val)
	case model.Properties:
		return checkValue(field, map[string]any(val))
	case map[string]any:
		for k, item := range val {
			if !storable(k) {
				return invalid(field, "keys must be valid UTF-8 without NUL characters")
			}
			if err := checkValue(field+"."+k, item); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range val {
			if err := checkValue(fmt.Sprintf("%s[%d]", field, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	default:
		return true
	}
}

// NormalizeCurrency upper-cases an ISO 4217 style code and checks its shape.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", invalid("currency", "must be a 3-letter code")
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return "", invalid("currency", "must be a 3-letter code")
		}
	}
	return code, nil
}

// ValidateRecord checks a fully built record, as read back from the stream.
func ValidateRecord(e *model.EventRecord) error {
	if e.ID == "" {
		return invalid("id", "is required")
	}
	for _, f := range []struct{ name, value string }{
		{"id", e.ID},
		{"event_name", e.EventName},
		{"currency", e.Currency},
		{"user_id", e.UserID},
		{"source", e.Source},
		{"medium", e.Medium},
		{"campaign", e.Campaign},
		{"session_id", e.SessionID},
		{"ip_address", e.IPAddress},
		{"user_agent", e.UserAgent},
		{"referrer", e.Referrer},
		{"country", e.Country},
		{"city", e.City},
		{"device", e.Device},
		{"browser", e.Browser},
		{"os", e.OS},
	} {
		if err := checkText(f.name, f.value); err != nil {
			return err
		}
	}
	if err := e.Validate(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if e.Value != nil {
		if _, err := NormalizeCurrency(e.Currency); err != nil {
			return err
		}
	}
	return ValidateProperties(e.EventType, e.Properties)
}
