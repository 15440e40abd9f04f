package tools

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"wayfarer/internal/modules/location"
	"wayfarer/internal/modules/params"
	"wayfarer/internal/search"
	"wayfarer/internal/types"
)

type FlightOption struct {
	Title    string       `json:"title"`
	Link     string       `json:"link,omitempty"`
	Airlines []string     `json:"airlines,omitempty"`
	Fare     *types.Money `json:"fare,omitempty"`
	Total    *types.Money `json:"total,omitempty"`
	Duration string       `json:"duration,omitempty"`
	Stops    *int         `json:"stops,omitempty"`
	Source   string       `json:"source"`
}

type FlightResult struct {
	Origin        string            `json:"origin"`
	Destination   string            `json:"destination"`
	DepartureDate civil.Date        `json:"departure_date"`
	ReturnDate    *civil.Date       `json:"return_date,omitempty"`
	Passengers    int               `json:"passengers"`
	Cabin         params.CabinClass `json:"cabin"`
	Options       []FlightOption    `json:"options"`
	LowestFare    *types.Money      `json:"lowest_fare,omitempty"`
	DistanceKm    float64           `json:"distance_km,omitempty"`
	EstFlightTime string            `json:"estimated_flight_time,omitempty"`
	Estimate      *FareEstimate     `json:"estimate,omitempty"`
}

type FlightTool struct {
	searcher  Searcher
	directory *location.Directory
	limit     int
}

// NewFlightTool builds the flight search tool. directory may be nil, in
// which case no distance-based estimate is attached.
func NewFlightTool(searcher Searcher, directory *location.Directory) *FlightTool {
	return &FlightTool{searcher: searcher, directory: directory, limit: 5}
}

func (t *FlightTool) Name() string          { return "flight_search" }
func (t *FlightTool) Intent() params.Intent { return params.IntentFlightSearch }
func (t *FlightTool) RequiredParameters() []params.Field {
	return []params.Field{params.FieldOrigin, params.FieldDestination, params.FieldDepartureDate}
}

func (t *FlightTool) Execute(ctx context.Context, set params.ParameterSet) (*Result, error) {
	if err := checkRequired(t, set); err != nil {
		return nil, err
	}
	p := set.Flight
	q := search.Query{
		Kind:  search.KindFlights,
		Text:  flightQueryText(p),
		Limit: t.limit,
	}
	resp, err := t.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("flight search: %w", err)
	}

	out := FlightResult{
		Origin:        p.Origin,
		Destination:   p.Destination,
		DepartureDate: *p.DepartureDate,
		ReturnDate:    p.ReturnDate,
		Passengers:    p.Passengers(),
		Cabin:         p.Cabin(),
	}
	for _, r := range resp.Results {
		if !flightRelated(r) {
			continue
		}
		out.Options = append(out.Options, flightOption(r, out.Passengers))
	}
	slices.SortStableFunc(out.Options, func(a, b FlightOption) int {
		switch {
		case a.Fare == nil && b.Fare == nil:
			return 0
		case a.Fare == nil:
			return 1
		case b.Fare == nil:
			return -1
		}
		return cmp.Compare(a.Fare.Amount, b.Fare.Amount)
	})
	if len(out.Options) > t.limit {
		out.Options = out.Options[:t.limit]
	}
	if len(out.Options) > 0 && out.Options[0].Fare != nil {
		out.LowestFare = out.Options[0].Fare
	}
	t.attachEstimate(&out)

	return &Result{
		Tool:      t.Name(),
		Intent:    t.Intent(),
		Summary:   out.summary(),
		Data:      out,
		Provider:  resp.Provider,
		FromCache: resp.FromCache,
	}, nil
}

func (t *FlightTool) attachEstimate(out *FlightResult) {
	if t.directory == nil {
		return
	}
	from, ok1 := t.directory.Lookup(out.Origin)
	to, ok2 := t.directory.Lookup(out.Destination)
	if !ok1 || !ok2 {
		return
	}
	km := location.DistanceKm(from, to)
	if km <= 0 {
		return
	}
	out.DistanceKm = km
	out.EstFlightTime = formatDuration(location.EstimateFlightTime(km))
	if out.LowestFare == nil {
		est := EstimateFare(km, out.Cabin, out.DepartureDate, out.Passengers)
		out.Estimate = &est
	}
}

func flightQueryText(p params.FlightParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "flights from %s to %s on %s", p.Origin, p.Destination, p.DepartureDate)
	if p.ReturnDate != nil {
		fmt.Fprintf(&b, " returning %s", p.ReturnDate)
	}
	if c := p.Cabin(); c != params.CabinEconomy {
		fmt.Fprintf(&b, " %s class", c)
	}
	if n := p.Passengers(); n > 1 {
		fmt.Fprintf(&b, " %d passengers", n)
	}
	return b.String()
}

func flightRelated(r search.Result) bool {
	t := strings.ToLower(r.Title + " " + r.Snippet)
	return strings.Contains(t, "flight") || strings.Contains(t, "air") || strings.Contains(t, "fly") || strings.Contains(t, "fare")
}

func flightOption(r search.Result, passengers int) FlightOption {
	o := FlightOption{
		Title:    r.Title,
		Link:     r.Link,
		Airlines: findAirlines(r.Title, r.Snippet),
		Source:   r.Source,
	}
	if fare, ok := findPrice(r.Price, r.Title, r.Snippet); ok {
		total := fare.Times(passengers)
		o.Fare, o.Total = &fare, &total
	}
	if d, ok := findDuration(r.Snippet); ok {
		o.Duration = formatDuration(d)
	}
	if n := findStops(r.Snippet); n >= 0 {
		o.Stops = &n
	}
	return o
}

func (r FlightResult) summary() string {
	var b strings.Builder
	when := r.DepartureDate.In(time.UTC).Format("Mon 2 Jan 2006")
	people := plural(r.Passengers, "passenger")
	if len(r.Options) == 0 {
		fmt.Fprintf(&b, "I couldn't find listed flights from %s to %s on %s (%s, %s).", r.Origin, r.Destination, when, people, r.Cabin)
	} else {
		fmt.Fprintf(&b, "Found %s from %s to %s on %s (%s, %s).",
			plural(len(r.Options), "flight option"), r.Origin, r.Destination, when, people, r.Cabin)
	}
	if r.ReturnDate != nil {
		fmt.Fprintf(&b, " Returning %s.", r.ReturnDate.In(time.UTC).Format("Mon 2 Jan 2006"))
	}
	if r.LowestFare != nil {
		best := r.Options[0]
		fmt.Fprintf(&b, " Lowest fare %s per person", r.LowestFare)
		if len(best.Airlines) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(best.Airlines, ", "))
		}
		b.WriteString(".")
	}
	if r.EstFlightTime != "" {
		fmt.Fprintf(&b, " Flight time is about %s.", r.EstFlightTime)
	}
	if r.Estimate != nil {
		fmt.Fprintf(&b, " Estimated total fare around %s.", r.Estimate.Total)
	}
	return b.String()
}
