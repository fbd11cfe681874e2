package geo

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"

	"github.com/smartlinks/smartlinks/internal/model"
)

// MaxMindProvider resolves addresses from a local GeoLite2/GeoIP2 City database.
type MaxMindProvider struct {
	mu sync.RWMutex
	db *maxminddb.Reader
}

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
		TimeZone  string  `maxminddb:"time_zone"`
	} `maxminddb:"location"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
}

// NewMaxMindProvider opens the .mmdb file at path.
func NewMaxMindProvider(path string) (*MaxMindProvider, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindProvider{db: db}, nil
}

// Name returns the provider name for logging.
func (p *MaxMindProvider) Name() string {
	return "maxmind"
}

// Lookup resolves ip from the local database.
func (p *MaxMindProvider) Lookup(_ context.Context, ip string) (*model.GeoResult, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, ErrInvalidIP
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, fmt.Errorf("%w: database closed", ErrLookupFailed)
	}

	var rec cityRecord
	if err := p.db.Lookup(parsed, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if rec.Country.ISOCode == "" {
		return nil, fmt.Errorf("%w: address not in database", ErrLookupFailed)
	}

	result := &model.GeoResult{
		CountryCode: rec.Country.ISOCode,
		Country:     rec.Country.Names["en"],
		City:        rec.City.Names["en"],
		Timezone:    rec.Location.TimeZone,
		Latitude:    rec.Location.Latitude,
		Longitude:   rec.Location.Longitude,
		Source:      p.Name(),
	}
	if len(rec.Subdivisions) > 0 {
		result.Region = rec.Subdivisions[0].Names["en"]
	}
	return result, nil
}

// Close releases the database.
func (p *MaxMindProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
