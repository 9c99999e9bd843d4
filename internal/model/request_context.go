package model

import "net/http"

// RequestContext is the slice of an inbound HTTP request the enricher reads.
type RequestContext struct {
	Query     map[string]string // first value of each query parameter
	Headers   map[string]string // canonical header name -> first value
	ClientIP  string
	SessionID string // explicit session id, if the caller has one
}

// Header returns a header value, or "" when absent. Names are matched
// in canonical form.
func (rc *RequestContext) Header(name string) string {
	if rc == nil || rc.Headers == nil {
		return ""
	}
	return rc.Headers[http.CanonicalHeaderKey(name)]
}

// QueryParam returns a query parameter, or "" when absent.
func (rc *RequestContext) QueryParam(name string) string {
	if rc == nil || rc.Query == nil {
		return ""
	}
	return rc.Query[name]
}

// EventContext is the enrichment output attached to a record at creation.
type EventContext struct {
	Source    string
	Medium    string
	Campaign  string
	SessionID string
	IPAddress string
	UserAgent string
	Referrer  string
	Country   string
	City      string
	Device    string
	Browser   string
	OS        string
}

// Apply copies the context fields onto the record.
func (c EventContext) Apply(e *EventRecord) {
	e.Source = c.Source
	e.Medium = c.Medium
	e.Campaign = c.Campaign
	e.SessionID = c.SessionID
	e.IPAddress = c.IPAddress
	e.UserAgent = c.UserAgent
	e.Referrer = c.Referrer
	e.Country = c.Country
	e.City = c.City
	e.Device = c.Device
	e.Browser = c.Browser
	e.OS = c.OS
}
