package geolocation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// MaxmindReader resolves addresses offline from a GeoLite2 City database.
// It cannot resolve the empty ip.
type MaxmindReader struct {
	reader *maxminddb.Reader
}

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

func NewMaxmindReader(dbLoc string) (*MaxmindReader, error) {
	reader, err := maxminddb.Open(dbLoc)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, ErrInvalidDatabase
		}
		if errors.As(err, &maxminddb.InvalidDatabaseError{}) {
			return nil, ErrInvalidDatabase
		}
		return nil, fmt.Errorf("opening maxmind reader from location: %w", err)
	}
	return &MaxmindReader{reader: reader}, nil
}

func (m *MaxmindReader) Locate(_ context.Context, ip string) (Info, error) {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return Info{}, ErrInvalidIP
	}

	var record cityRecord
	if err := m.reader.Lookup(parsedIP, &record); err != nil {
		return Info{}, fmt.Errorf("reading geolocation for ip: %w", err)
	}

	return Info{
		IP:      ip,
		City:    record.City.Names["en"],
		Country: record.Country.ISOCode,
	}, nil
}

func (m *MaxmindReader) Close() error {
	return m.reader.Close()
}
