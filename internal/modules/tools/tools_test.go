package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/modules/gateway"
	"wayfarer/internal/modules/location"
	"wayfarer/internal/modules/params"
	"wayfarer/internal/search"
)

type fakeSearcher struct {
	results []search.Result
	err     error
	queries []search.Query
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) (*gateway.Response, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Response{Results: f.results, Provider: "fake", Attempts: 1}, nil
}

func date(y int, m time.Month, d int) *civil.Date {
	v := civil.Date{Year: y, Month: m, Day: d}
	return &v
}

func TestRegistryDispatchesByIntent(t *testing.T) {
	s := &fakeSearcher{}
	r := NewRegistry(NewFlightTool(s, nil), NewHotelTool(s), NewInfoTool(s))

	tool, ok := r.For(params.IntentHotelSearch)
	require.True(t, ok)
	assert.Equal(t, "hotel_search", tool.Name())
	_, ok = r.For(params.IntentUnclear)
	assert.False(t, ok)
	assert.Equal(t, []string{"destination_info", "flight_search", "hotel_search"}, r.Names())
}

func TestRegistryRequireAddsToolFields(t *testing.T) {
	r := NewRegistry(NewFlightTool(&fakeSearcher{}, nil), NewHotelTool(&fakeSearcher{}))
	base := params.Schema{params.IntentFlightSearch: {
		Required: []params.Field{params.FieldOrigin},
		Priority: []params.Field{params.FieldOrigin, params.FieldDestination},
	}}

	got := r.Require(base)
	assert.Equal(t, []params.Field{params.FieldOrigin, params.FieldDestination, params.FieldDepartureDate},
		got.Required(params.IntentFlightSearch))
	assert.Equal(t, []params.Field{params.FieldLocation, params.FieldCheckIn, params.FieldCheckOut},
		got.Required(params.IntentHotelSearch))
	assert.Equal(t, []params.Field{params.FieldOrigin}, base.Required(params.IntentFlightSearch), "input schema must not change")
	require.NoError(t, got.Validate())
}

func TestFlightToolParsesResults(t *testing.T) {
	s := &fakeSearcher{results: []search.Result{
		{Title: "Cheap flights Boston to Chicago from $189", Snippet: "United Airlines nonstop, 2h 45m", Link: "https://a", Source: "serper"},
		{Title: "Boston (BOS) to Chicago (ORD) flights", Snippet: "Fly Delta from $129 with 1 stop. Duration: 4:10", Source: "serper"},
		{Title: "Things to do in Chicago", Snippet: "Museums and parks", Source: "serper"},
	}}
	set := params.ParameterSet{Flight: params.FlightParams{
		Origin: "Boston", Destination: "Chicago", DepartureDate: date(2026, time.October, 19), PassengerCount: params.Count(2),
	}}

	tool := NewFlightTool(s, location.NewDirectory(nil, nil))
	res, err := tool.Execute(context.Background(), set)
	require.NoError(t, err)

	require.Len(t, s.queries, 1)
	assert.Equal(t, search.KindFlights, s.queries[0].Kind)
	assert.Equal(t, "flights from Boston to Chicago on 2026-10-19 2 passengers", s.queries[0].Text)

	data := res.Data.(FlightResult)
	require.Len(t, data.Options, 2)
	assert.Equal(t, "$129", data.Options[0].Fare.String())
	assert.Equal(t, "$258", data.Options[0].Total.String())
	assert.Equal(t, []string{"Delta"}, data.Options[0].Airlines)
	require.NotNil(t, data.Options[0].Stops)
	assert.Equal(t, 1, *data.Options[0].Stops)
	assert.Equal(t, "4h 10m", data.Options[0].Duration)
	assert.Equal(t, 0, *data.Options[1].Stops)
	assert.Equal(t, "2h 45m", data.Options[1].Duration)
	assert.Equal(t, "$129", data.LowestFare.String())
	assert.InDelta(t, 1390, data.DistanceKm, 30)
	assert.Nil(t, data.Estimate)
	assert.Contains(t, res.Summary, "Lowest fare $129 per person (Delta)")
	assert.Equal(t, "fake", res.Provider)
}

func TestFlightToolEstimatesWithoutFares(t *testing.T) {
	s := &fakeSearcher{results: []search.Result{{Title: "Flights to Chicago", Source: "serper"}}}
	set := params.ParameterSet{Flight: params.FlightParams{
		Origin: "BOS", Destination: "ORD", DepartureDate: date(2026, time.October, 19),
	}}
	res, err := NewFlightTool(s, location.NewDirectory(nil, nil)).Execute(context.Background(), set)
	require.NoError(t, err)

	data := res.Data.(FlightResult)
	require.NotNil(t, data.Estimate)
	assert.Contains(t, res.Summary, "Estimated total fare around")
}

func TestFlightToolRequiresParameters(t *testing.T) {
	_, err := NewFlightTool(&fakeSearcher{}, nil).Execute(context.Background(), params.ParameterSet{})
	assert.ErrorIs(t, err, ErrMissingParameters)
}

func TestToolPropagatesGatewayErrors(t *testing.T) {
	s := &fakeSearcher{err: &gateway.ExhaustedError{Category: gateway.CategorySearch}}
	set := params.ParameterSet{Info: params.InfoParams{Destination: "Lisbon"}}
	_, err := NewInfoTool(s).Execute(context.Background(), set)
	assert.True(t, errors.Is(err, gateway.ErrAllProvidersExhausted))
}

func TestHotelToolRanksByPreferences(t *testing.T) {
	s := &fakeSearcher{results: []search.Result{
		{Title: "Grand Plaza", Rating: 4.8, Price: "$$$", Address: "1 Main St", Source: "google_places"},
		{Title: "Harbor Inn", Rating: 4.1, Snippet: "Rooftop pool and free breakfast, rooms from $120", Source: "serper"},
	}}
	set := params.ParameterSet{Hotel: params.HotelParams{
		Location: "Lisbon", CheckIn: date(2026, time.November, 2), CheckOut: date(2026, time.November, 5),
		GuestCount: params.Count(2), Preferences: []string{"pool"},
	}}

	res, err := NewHotelTool(s).Execute(context.Background(), set)
	require.NoError(t, err)

	q := s.queries[0]
	assert.Equal(t, search.KindHotels, q.Kind)
	assert.Equal(t, "hotels in Lisbon with pool", q.Text)
	assert.Equal(t, "2026-11-02", q.Filters["check_in"])
	assert.Equal(t, "2", q.Filters["guests"])

	data := res.Data.(HotelResult)
	assert.Equal(t, 3, data.Nights)
	require.Len(t, data.Options, 2)
	assert.Equal(t, "Harbor Inn", data.Options[0].Name)
	assert.Equal(t, "$360", data.Options[0].Total.String())
	assert.Equal(t, "$$$", data.Options[1].PriceLevel)
	assert.Contains(t, res.Summary, "Top pick: Harbor Inn")
}

func TestInfoToolTopicQueries(t *testing.T) {
	s := &fakeSearcher{results: []search.Result{{Title: "Lisbon weather", Snippet: "Mild winters, hot dry summers.", Source: "serper"}}}
	set := params.ParameterSet{Info: params.InfoParams{Destination: "Lisbon", Topic: params.TopicWeather}}

	res, err := NewInfoTool(s).Execute(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, "weather and best time to visit Lisbon", s.queries[0].Text)
	assert.Equal(t, "weather", s.queries[0].Filters["topic"])
	assert.Equal(t, "Lisbon (weather): Mild winters, hot dry summers.", res.Summary)

	set.Info.Topic = ""
	_, err = NewInfoTool(s).Execute(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon travel guide", s.queries[1].Text)
}

func TestEstimateFare(t *testing.T) {
	monday := civil.Date{Year: 2026, Month: time.October, Day: 19}
	est := EstimateFare(1000, params.CabinEconomy, monday, 2)
	assert.Equal(t, "$278", est.Total.String())
	assert.Equal(t, int64(4900), est.Breakdown["base"])

	july := civil.Date{Year: 2026, Month: time.July, Day: 6}
	assert.Equal(t, "$167", EstimateFare(1000, params.CabinEconomy, july, 1).Total.String())

	friday := civil.Date{Year: 2026, Month: time.October, Day: 23}
	assert.Equal(t, "$153", EstimateFare(1000, params.CabinEconomy, friday, 1).Total.String())
}

func TestSnippetParsing(t *testing.T) {
	m, ok := findPrice("", "Round trip from USD 1,249.50")
	require.True(t, ok)
	assert.Equal(t, int64(124950), m.Amount)
	_, ok = findPrice("no prices here")
	assert.False(t, ok)

	assert.Equal(t, -1, findStops("great views"))
	assert.Equal(t, 2, findStops("2 stops via DFW"))
	assert.Empty(t, findAirlines("Save on bananas in Canada"))
}
