// README: Airport and city directory with an optional geocoder fallback.
package location

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("location not found")

// Place is a resolved airport, city or landmark.
type Place struct {
	Name    string  `json:"name"`
	Code    string  `json:"code,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Geocoder resolves a free-text place name. It returns ErrNotFound when the
// name does not match a locality.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (*Place, error)
}

// Directory answers location lookups from memory. Names learned through the
// geocoder are kept for the lifetime of the process.
type Directory struct {
	mu       sync.RWMutex
	byCode   map[string]Place
	byName   map[string]Place
	geocoder Geocoder
	logger   *zap.Logger
}

func NewDirectory(geocoder Geocoder, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Directory{
		byCode:   make(map[string]Place, len(airports)),
		byName:   make(map[string]Place, len(airports)),
		geocoder: geocoder,
		logger:   logger,
	}
	for _, p := range airports {
		d.byCode[p.Code] = p
		key := normalize(p.Name)
		if _, dup := d.byName[key]; !dup {
			d.byName[key] = p
		}
	}
	for alias, code := range cityAliases {
		d.byName[normalize(alias)] = d.byCode[code]
	}
	return d
}

// Known reports whether name is a known code or place. It never blocks.
func (d *Directory) Known(name string) bool {
	_, ok := d.Lookup(name)
	return ok
}

// Lookup finds name by IATA code (case-sensitive upper) or by name.
func (d *Directory) Lookup(name string) (Place, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.byCode[strings.TrimSpace(name)]; ok {
		return p, true
	}
	p, ok := d.byName[normalize(name)]
	return p, ok
}

// CodeFor returns the IATA code for a known place, or "".
func (d *Directory) CodeFor(name string) string {
	p, ok := d.Lookup(name)
	if !ok {
		return ""
	}
	return p.Code
}

// Resolve looks name up and falls back to the geocoder. A geocoded place is
// remembered so later Known calls succeed without blocking.
func (d *Directory) Resolve(ctx context.Context, name string) (Place, bool, error) {
	if p, ok := d.Lookup(name); ok {
		return p, true, nil
	}
	if d.geocoder == nil {
		return Place{}, false, nil
	}
	p, err := d.geocoder.Geocode(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return Place{}, false, nil
	}
	if err != nil {
		return Place{}, false, err
	}
	d.mu.Lock()
	d.byName[normalize(name)] = *p
	d.mu.Unlock()
	d.logger.Debug("location learned", zap.String("name", name), zap.String("resolved", p.Name))
	return *p, true, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var cityAliases = map[string]string{
	"New York City": "JFK",
	"NYC":           "JFK",
	"LA":            "LAX",
	"San Fran":      "SFO",
	"DC":            "IAD",
	"Washington DC": "IAD",
	"Sao Paulo":     "GRU",
	"Bombay":        "BOM",
}

// airports is the built-in directory. The first entry for a city wins the
// name lookup, so the main international airport is listed first.
var airports = []Place{
	{Name: "Boston", Code: "BOS", Country: "US", Lat: 42.3656, Lng: -71.0096},
	{Name: "Chicago", Code: "ORD", Country: "US", Lat: 41.9742, Lng: -87.9073},
	{Name: "Chicago", Code: "MDW", Country: "US", Lat: 41.7868, Lng: -87.7522},
	{Name: "New York", Code: "JFK", Country: "US", Lat: 40.6413, Lng: -73.7781},
	{Name: "New York", Code: "LGA", Country: "US", Lat: 40.7769, Lng: -73.8740},
	{Name: "Newark", Code: "EWR", Country: "US", Lat: 40.6895, Lng: -74.1745},
	{Name: "Los Angeles", Code: "LAX", Country: "US", Lat: 33.9416, Lng: -118.4085},
	{Name: "San Francisco", Code: "SFO", Country: "US", Lat: 37.6213, Lng: -122.3790},
	{Name: "Seattle", Code: "SEA", Country: "US", Lat: 47.4502, Lng: -122.3088},
	{Name: "Miami", Code: "MIA", Country: "US", Lat: 25.7959, Lng: -80.2870},
	{Name: "Atlanta", Code: "ATL", Country: "US", Lat: 33.6407, Lng: -84.4277},
	{Name: "Dallas", Code: "DFW", Country: "US", Lat: 32.8998, Lng: -97.0403},
	{Name: "Denver", Code: "DEN", Country: "US", Lat: 39.8561, Lng: -104.6737},
	{Name: "Washington", Code: "IAD", Country: "US", Lat: 38.9531, Lng: -77.4565},
	{Name: "Toronto", Code: "YYZ", Country: "CA", Lat: 43.6777, Lng: -79.6248},
	{Name: "Vancouver", Code: "YVR", Country: "CA", Lat: 49.1967, Lng: -123.1815},
	{Name: "Mexico City", Code: "MEX", Country: "MX", Lat: 19.4361, Lng: -99.0719},
	{Name: "London", Code: "LHR", Country: "GB", Lat: 51.4700, Lng: -0.4543},
	{Name: "London", Code: "LGW", Country: "GB", Lat: 51.1537, Lng: -0.1821},
	{Name: "Paris", Code: "CDG", Country: "FR", Lat: 49.0097, Lng: 2.5479},
	{Name: "Amsterdam", Code: "AMS", Country: "NL", Lat: 52.3105, Lng: 4.7683},
	{Name: "Frankfurt", Code: "FRA", Country: "DE", Lat: 50.0379, Lng: 8.5622},
	{Name: "Berlin", Code: "BER", Country: "DE", Lat: 52.3667, Lng: 13.5033},
	{Name: "Madrid", Code: "MAD", Country: "ES", Lat: 40.4983, Lng: -3.5676},
	{Name: "Barcelona", Code: "BCN", Country: "ES", Lat: 41.2974, Lng: 2.0833},
	{Name: "Lisbon", Code: "LIS", Country: "PT", Lat: 38.7742, Lng: -9.1342},
	{Name: "Rome", Code: "FCO", Country: "IT", Lat: 41.8003, Lng: 12.2389},
	{Name: "Milan", Code: "MXP", Country: "IT", Lat: 45.6306, Lng: 8.7281},
	{Name: "Zurich", Code: "ZRH", Country: "CH", Lat: 47.4582, Lng: 8.5555},
	{Name: "Istanbul", Code: "IST", Country: "TR", Lat: 41.2753, Lng: 28.7519},
	{Name: "Dubai", Code: "DXB", Country: "AE", Lat: 25.2532, Lng: 55.3657},
	{Name: "Doha", Code: "DOH", Country: "QA", Lat: 25.2731, Lng: 51.6081},
	{Name: "Riyadh", Code: "RUH", Country: "SA", Lat: 24.9576, Lng: 46.6988},
	{Name: "Jeddah", Code: "JED", Country: "SA", Lat: 21.6796, Lng: 39.1565},
	{Name: "Cairo", Code: "CAI", Country: "EG", Lat: 30.1219, Lng: 31.4056},
	{Name: "Mumbai", Code: "BOM", Country: "IN", Lat: 19.0896, Lng: 72.8656},
	{Name: "Delhi", Code: "DEL", Country: "IN", Lat: 28.5562, Lng: 77.1000},
	{Name: "Singapore", Code: "SIN", Country: "SG", Lat: 1.3644, Lng: 103.9915},
	{Name: "Bangkok", Code: "BKK", Country: "TH", Lat: 13.6900, Lng: 100.7501},
	{Name: "Hong Kong", Code: "HKG", Country: "HK", Lat: 22.3080, Lng: 113.9185},
	{Name: "Taipei", Code: "TPE", Country: "TW", Lat: 25.0797, Lng: 121.2342},
	{Name: "Seoul", Code: "ICN", Country: "KR", Lat: 37.4602, Lng: 126.4407},
	{Name: "Tokyo", Code: "HND", Country: "JP", Lat: 35.5494, Lng: 139.7798},
	{Name: "Tokyo", Code: "NRT", Country: "JP", Lat: 35.7720, Lng: 140.3929},
	{Name: "Osaka", Code: "KIX", Country: "JP", Lat: 34.4320, Lng: 135.2304},
	{Name: "Sydney", Code: "SYD", Country: "AU", Lat: -33.9399, Lng: 151.1753},
	{Name: "Melbourne", Code: "MEL", Country: "AU", Lat: -37.6690, Lng: 144.8410},
	{Name: "Auckland", Code: "AKL", Country: "NZ", Lat: -37.0082, Lng: 174.7850},
	{Name: "Sao Paulo", Code: "GRU", Country: "BR", Lat: -23.4356, Lng: -46.4731},
	{Name: "Buenos Aires", Code: "EZE", Country: "AR", Lat: -34.8222, Lng: -58.5358},
	{Name: "Johannesburg", Code: "JNB", Country: "ZA", Lat: -26.1367, Lng: 28.2411},
}
