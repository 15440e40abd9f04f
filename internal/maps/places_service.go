package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"wayfarer/internal/search"
)

// PlacesService serves hotel and attraction searches from the Google Places
// text search API. It does not know about flights.
type PlacesService struct {
	client    *maps.Client
	minRating float32
	language  string
}

// NewPlacesService creates a new PlacesService with the given API Key.
// Extra client options (e.g. maps.WithBaseURL) are passed through.
func NewPlacesService(apiKey string, minRating float32, opts ...maps.ClientOption) (*PlacesService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client, minRating: minRating, language: "en"}, nil
}

func (s *PlacesService) Name() string { return "google_places" }

// Search runs a text search near q.Location. Lodging queries are restricted
// to the lodging place type and topic "attractions" to tourist attractions.
// Other info topics and flights return search.ErrUnsupported.
func (s *PlacesService) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	r := &maps.TextSearchRequest{
		Query:    q.Text,
		Language: s.language,
	}
	switch q.Kind {
	case search.KindHotels:
		r.Type = maps.PlaceTypeLodging
	case search.KindInfo:
		if q.Filters["topic"] != "attractions" {
			return nil, search.ErrUnsupported
		}
		r.Type = maps.PlaceTypeTouristAttraction
	default:
		return nil, search.ErrUnsupported
	}
	if q.Location != "" && !containsIgnoreCase(r.Query, q.Location) {
		r.Query = fmt.Sprintf("%s in %s", r.Query, q.Location)
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return nil, classify(s.Name(), err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	excluded := splitList(q.Filters["exclude"])

	var results []search.Result
	for _, result := range resp.Results {
		if result.Rating < s.minRating || result.PermanentlyClosed {
			continue
		}
		if matchesAny(result.Name, excluded) {
			continue
		}
		results = append(results, search.Result{
			Title:       result.Name,
			Address:     result.FormattedAddress,
			Rating:      float64(result.Rating),
			RatingCount: result.UserRatingsTotal,
			Price:       priceLevel(result.PriceLevel),
			Link:        "https://www.google.com/maps/place/?q=place_id:" + result.PlaceID,
			Snippet:     strings.Join(result.Types, ", "),
			Source:      s.Name(),
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func priceLevel(level int) string {
	if level <= 0 {
		return ""
	}
	return strings.Repeat("$", level)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func matchesAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && containsIgnoreCase(name, kw) {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
