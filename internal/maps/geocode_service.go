package maps

import (
	"context"
	"fmt"
	"slices"

	"googlemaps.github.io/maps"

	"wayfarer/internal/modules/location"
)

// GeocodeService resolves free-text city names for the location directory.
type GeocodeService struct {
	client *maps.Client
}

func NewGeocodeService(apiKey string, opts ...maps.ClientOption) (*GeocodeService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client}, nil
}

// Geocode returns the first locality, airport or administrative area that
// matches name. Street-level matches are not places a traveller flies to and
// count as not found.
func (s *GeocodeService) Geocode(ctx context.Context, name string) (*location.Place, error) {
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: name})
	if err != nil {
		return nil, classify("google_geocode", err)
	}
	for _, r := range results {
		if !placeLike(r.Types) {
			continue
		}
		p := &location.Place{
			Name: r.FormattedAddress,
			Lat:  r.Geometry.Location.Lat,
			Lng:  r.Geometry.Location.Lng,
		}
		for _, c := range r.AddressComponents {
			if slices.Contains(c.Types, "locality") || slices.Contains(c.Types, "airport") {
				p.Name = c.LongName
			}
			if slices.Contains(c.Types, "country") {
				p.Country = c.ShortName
			}
		}
		return p, nil
	}
	return nil, location.ErrNotFound
}

func placeLike(types []string) bool {
	for _, t := range types {
		switch t {
		case "locality", "airport", "administrative_area_level_1", "country", "colloquial_area", "natural_feature", "tourist_attraction":
			return true
		}
	}
	return false
}
