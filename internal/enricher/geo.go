package enricher

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Unknown is the placeholder location used when no geo database is configured.
const Unknown = "Unknown"

// GeoProvider resolves a client IP to a country and city.
// Implementations must not fail; unknown locations are returned as "".
type GeoProvider interface {
	Lookup(ip string) (country, city string)
}

// PlaceholderGeo answers every lookup with Unknown.
type PlaceholderGeo struct{}

// Lookup implements GeoProvider.
func (PlaceholderGeo) Lookup(string) (string, string) {
	return Unknown, Unknown
}

// GeoIPProvider looks locations up in a MaxMind City database.
type GeoIPProvider struct {
	reader *geoip2.Reader
}

// OpenGeoIP opens the MaxMind database at path.
func OpenGeoIP(path string) (*GeoIPProvider, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &GeoIPProvider{reader: reader}, nil
}

// Lookup implements GeoProvider.
func (p *GeoIPProvider) Lookup(ip string) (string, string) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", ""
	}
	record, err := p.reader.City(parsed)
	if err != nil {
		return "", ""
	}
	return record.Country.IsoCode, record.City.Names["en"]
}

// Close releases the database.
func (p *GeoIPProvider) Close() error {
	return p.reader.Close()
}
