package events

import (
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"
)

// CountryLookup resolves an IP address to an ISO-3166 alpha-2 country code.
// Grounded on the teacher's GeoIPProvider interface (internal/sync/geoip_provider.go),
// narrowed to the single field anonymize_user needs.
type CountryLookup interface {
	// Country returns the ISO-3166 alpha-2 country code for ip, or "" if the
	// address can't be resolved.
	Country(ip string) string
}

// NullCountryLookup never resolves anything; used when no GeoLite2 database
// is configured. country is simply absent from the enriched event, which is
// the documented behavior for an unresolved IP.
type NullCountryLookup struct{}

func (NullCountryLookup) Country(string) string { return "" }

// MaxMindCountryLookup resolves countries from a local MaxMind GeoLite2-Country
// (or GeoLite2-City) database file, with no outbound network calls — unlike the
// teacher's web-service MaxMindProvider, this is the offline reader shape used
// throughout the rest of the retrieval pack for this exact lookup.
type MaxMindCountryLookup struct {
	mu sync.RWMutex
	db *maxminddb.Reader
}

// OpenMaxMindCountryLookup opens a GeoLite2 database file. The caller owns
// the Close() lifecycle.
func OpenMaxMindCountryLookup(path string) (*MaxMindCountryLookup, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindCountryLookup{db: db}, nil
}

// Close releases the underlying memory-mapped database file.
func (m *MaxMindCountryLookup) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// Country implements CountryLookup. An unparsable IP or a miss in the
// database both resolve to "" (absent country), never an error.
func (m *MaxMindCountryLookup) Country(ip string) string {
	addr := net.ParseIP(ip)
	if addr == nil {
		return ""
	}

	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()
	if db == nil {
		return ""
	}

	var rec countryRecord
	if err := db.Lookup(addr, &rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}
