package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/ai"
	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/gateway"
	"wayfarer/internal/modules/guard"
	"wayfarer/internal/modules/location"
	"wayfarer/internal/modules/params"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/modules/tools"
	"wayfarer/internal/search"
)

// 2026-10-14 is a Wednesday.
var wednesday = time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

type recordingSearch struct {
	mu      sync.Mutex
	queries []search.Query
	err     error
}

func (s *recordingSearch) Name() string { return "fake_search" }

func (s *recordingSearch) Search(_ context.Context, q search.Query) ([]search.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return []search.Result{{
		Title:   "Cheap flights and hotels for " + q.Text + " from $129",
		Snippet: "Delta nonstop, 2h 40m. Rooftop pool.",
		Source:  "fake_search",
	}}, nil
}

func (s *recordingSearch) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func (s *recordingSearch) last() search.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[len(s.queries)-1]
}

type scriptedLLM struct {
	text string
	err  error
}

func (l *scriptedLLM) Name() string { return "fake_llm" }

func (l *scriptedLLM) Complete(context.Context, ai.CompletionRequest) (*ai.Completion, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &ai.Completion{Text: l.text, Provider: "fake_llm"}, nil
}

type denyBudget struct{}

func (denyBudget) Allow(context.Context, string) error { return gateway.ErrRateLimited }

// racingBackend lets another writer win the next `races` compare-and-swaps.
// The competing write sets the hotel location to Paris.
type racingBackend struct {
	*session.MemoryBackend
	mu    sync.Mutex
	races int
	raced int
}

func (b *racingBackend) CompareAndSwap(ctx context.Context, next *session.SessionState, expected int64, expiresAt time.Time) error {
	b.mu.Lock()
	race := b.raced < b.races
	if race {
		b.raced++
	}
	b.mu.Unlock()
	if race {
		other, err := next.Clone()
		if err != nil {
			return err
		}
		other.Parameters.Hotel.Location = "Paris"
		other.Version = expected + 1
		if err := b.MemoryBackend.CompareAndSwap(ctx, other, expected, expiresAt); err != nil {
			return err
		}
	}
	return b.MemoryBackend.CompareAndSwap(ctx, next, expected, expiresAt)
}

type failingBackend struct{ session.Backend }

func (failingBackend) Get(context.Context, string, time.Time) (*session.SessionState, error) {
	return nil, errors.New("redis: connection refused")
}

type env struct {
	orch   *Orchestrator
	search *recordingSearch
	store  *session.Store
}

type envOptions struct {
	cfg     Config
	llm     *scriptedLLM
	budget  gateway.Budget
	backend session.Backend
	guard   *guard.Guard
	schema  params.Schema
	tools   []tools.Tool
}

func newEnv(t *testing.T, opts envOptions) *env {
	t.Helper()
	clock := func() time.Time { return wednesday }

	backend := opts.backend
	if backend == nil {
		backend = session.NewMemoryBackend()
	}
	store := session.NewStore(backend, session.Config{TTL: time.Hour, HistoryLimit: 10}, nil)
	store.SetClock(clock)

	fs := &recordingSearch{}
	deps := gateway.Deps{Search: []search.Provider{fs}, Budget: opts.budget}
	if opts.llm != nil {
		deps.Completion = []ai.Provider{opts.llm}
	}
	gw := gateway.New(gateway.Config{MaxAttempts: 1, InitialBackoff: time.Millisecond, CallTimeout: time.Second}, deps)

	var completer extract.Completer
	if opts.llm != nil {
		completer = gw
	}
	dir := location.NewDirectory(nil, nil)
	ts := opts.tools
	if ts == nil {
		ts = []tools.Tool{tools.NewFlightTool(gw, dir), tools.NewHotelTool(gw), tools.NewInfoTool(gw)}
	}
	schema := opts.schema
	if schema == nil {
		schema = params.DefaultSchema()
	}
	orch := New(opts.cfg, Deps{
		Store:     store,
		Extractor: extract.NewExtractor(completer, schema, time.UTC, nil),
		Tools:     tools.NewRegistry(ts...),
		Directory: dir,
		Guard:     opts.guard,
		Schema:    schema,
	})
	orch.SetClock(clock)
	return &env{orch: orch, search: fs, store: store}
}

func (e *env) say(t *testing.T, id, text string) *Reply {
	t.Helper()
	r, err := e.orch.Handle(context.Background(), id, text)
	require.NoError(t, err)
	return r
}

func TestBostonToChicagoNextMonday(t *testing.T) {
	e := newEnv(t, envOptions{})

	r := e.say(t, "s1", "Find flights from Boston to Chicago")
	assert.Equal(t, PhaseCollectingParameters, r.Phase)
	assert.Equal(t, params.IntentFlightSearch, r.Intent)
	assert.Equal(t, []params.Field{params.FieldDepartureDate}, r.Missing)
	assert.Equal(t, "Got it, a flight from Boston to Chicago. What date would you like to depart?", r.Text)
	assert.Equal(t, int64(1), r.Version)
	assert.Equal(t, 0, e.search.count())

	r = e.say(t, "s1", "next Monday")
	assert.Equal(t, PhaseResponding, r.Phase)
	require.NotNil(t, r.Parameters.Flight.DepartureDate)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.October, Day: 19}, *r.Parameters.Flight.DepartureDate)
	assert.Empty(t, r.Missing)
	require.Equal(t, 1, e.search.count())
	assert.Equal(t, "flights from Boston to Chicago on 2026-10-19", e.search.last().Text)
	require.NotNil(t, r.Result)
	assert.Equal(t, "flight_search", r.Result.Tool)
	assert.False(t, r.Degraded)
	assert.Equal(t, int64(2), r.Version)

	// Same parameters: the stored result is reused.
	r = e.say(t, "s1", "thanks, show me that again")
	require.NotNil(t, r.Result)
	assert.True(t, r.Result.FromCache)
	assert.Equal(t, 1, e.search.count())

	// A refinement mutates the existing parameters and searches again.
	r = e.say(t, "s1", "actually make it business class")
	assert.Equal(t, params.CabinBusiness, r.Parameters.Flight.CabinClass)
	assert.Equal(t, "Boston", r.Parameters.Flight.Origin)
	require.Equal(t, 2, e.search.count())
	assert.Contains(t, e.search.last().Text, "business class")

	snap, err := e.orch.Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.Version)
	assert.Len(t, snap.History, 8)
	assert.Equal(t, PhaseResponding, snap.Phase)
}

func TestUnclearIntentAsksToClarify(t *testing.T) {
	e := newEnv(t, envOptions{})
	r := e.say(t, "s1", "hello there")
	assert.Equal(t, PhaseAwaitingIntent, r.Phase)
	assert.Equal(t, clarifyIntentText, r.Text)

	snap, err := e.orch.Session(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, session.QuestionClarifyIntent, snap.Pending.Kind)
}

func TestDateOrderClearsFieldAndAsks(t *testing.T) {
	e := newEnv(t, envOptions{})
	r := e.say(t, "s1", "flights from Boston to Chicago on november 10 returning november 5")
	assert.Equal(t, PhaseCollectingParameters, r.Phase)
	assert.Nil(t, r.Parameters.Flight.ReturnDate)
	assert.Contains(t, r.Text, "The return has to be after your departure on Tue 10 Nov 2026.")
	assert.Equal(t, 0, e.search.count())

	r = e.say(t, "s1", "november 12")
	assert.Equal(t, PhaseResponding, r.Phase)
	require.NotNil(t, r.Parameters.Flight.ReturnDate)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.November, Day: 12}, *r.Parameters.Flight.ReturnDate)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.November, Day: 10}, *r.Parameters.Flight.DepartureDate)
	assert.Equal(t, 1, e.search.count())
}

func TestUnknownPlaceIsAskedAgain(t *testing.T) {
	e := newEnv(t, envOptions{})
	r := e.say(t, "s1", "flights from Boston to Atlantis tomorrow")
	assert.Equal(t, `I couldn't find a place called "Atlantis". Where would you like to fly to?`, r.Text)
	assert.Empty(t, r.Parameters.Flight.Destination)
	assert.Equal(t, []params.Field{params.FieldDestination}, r.Missing)

	r = e.say(t, "s1", "Denver")
	assert.Equal(t, PhaseResponding, r.Phase)
	assert.Equal(t, "Denver", r.Parameters.Flight.Destination)
}

func TestExhaustedProvidersDegradeButPersist(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.search.err = &search.StatusError{Provider: "fake_search", Code: http.StatusServiceUnavailable}

	r := e.say(t, "s1", "fly from Boston to Chicago tomorrow")
	assert.Equal(t, degradedText, r.Text)
	assert.True(t, r.Degraded)
	assert.Equal(t, PhaseResponding, r.Phase)
	assert.Equal(t, int64(1), r.Version)

	snap, err := e.orch.Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Chicago", snap.Parameters.Flight.Destination)
	assert.Nil(t, snap.LastToolResult)
}

func TestRateLimitedAsksToRetryLater(t *testing.T) {
	e := newEnv(t, envOptions{budget: denyBudget{}})
	r := e.say(t, "s1", "fly from Boston to Chicago tomorrow")
	assert.Equal(t, retryLaterText, r.Text)
	assert.True(t, r.Degraded)
	assert.Equal(t, 0, e.search.count())
}

func TestConcurrentWriteRetriesTurnWithoutLosingUpdate(t *testing.T) {
	backend := &racingBackend{MemoryBackend: session.NewMemoryBackend(), races: 1}
	e := newEnv(t, envOptions{backend: backend})

	r := e.say(t, "s1", "Find flights from Boston to Chicago")
	assert.Equal(t, 1, backend.raced)
	assert.Equal(t, int64(2), r.Version)
	assert.Equal(t, "Paris", r.Parameters.Hotel.Location)
	assert.Equal(t, "Chicago", r.Parameters.Flight.Destination)
}

func TestTurnRetriesAreBounded(t *testing.T) {
	backend := &racingBackend{MemoryBackend: session.NewMemoryBackend(), races: 100}
	e := newEnv(t, envOptions{backend: backend, cfg: Config{MaxTurnRetries: 2, RetryBackoff: 10 * time.Millisecond}})
	var waits []time.Duration
	e.orch.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	r := e.say(t, "s1", "Find flights from Boston to Chicago")
	assert.Equal(t, tryAgainText, r.Text)
	assert.True(t, r.Degraded)
	assert.Equal(t, 3, backend.raced)

	// One wait between each pair of attempts, none after the last.
	require.Len(t, waits, 2)
	assert.GreaterOrEqual(t, waits[0], 10*time.Millisecond)
	assert.Less(t, waits[0], 20*time.Millisecond)
	assert.GreaterOrEqual(t, waits[1], 20*time.Millisecond)
	assert.Less(t, waits[1], 30*time.Millisecond)
}

func TestRetryWaitStopsAtTurnDeadline(t *testing.T) {
	backend := &racingBackend{MemoryBackend: session.NewMemoryBackend(), races: 100}
	e := newEnv(t, envOptions{backend: backend})
	e.orch.sleep = func(context.Context, time.Duration) error { return context.DeadlineExceeded }

	r := e.say(t, "s1", "Find flights from Boston to Chicago")
	assert.Equal(t, unavailableText, r.Text)
	assert.True(t, r.Degraded)
	assert.Equal(t, 1, backend.raced)
}

func TestStoreFailureDegrades(t *testing.T) {
	e := newEnv(t, envOptions{backend: failingBackend{}})
	r := e.say(t, "s1", "Find flights from Boston to Chicago")
	assert.Equal(t, unavailableText, r.Text)
	assert.True(t, r.Degraded)
}

func TestGuardRejectionLeavesStateUntouched(t *testing.T) {
	e := newEnv(t, envOptions{guard: guard.New(guard.Config{MaxUtteranceLen: 10}, nil)})

	_, err := e.orch.Handle(context.Background(), "s1", "Find flights from Boston to Chicago")
	require.Error(t, err)
	assert.True(t, errors.Is(err, guard.ErrInputRejected))

	_, err = e.orch.Handle(context.Background(), "bad id!", "hi")
	assert.True(t, errors.Is(err, guard.ErrInputRejected))

	snap, err := e.orch.Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version)
}

func TestConfirmInferredValues(t *testing.T) {
	llm := &scriptedLLM{text: `{"intent":"flight_search","departure_date":"2026-10-20"}`}
	e := newEnv(t, envOptions{llm: llm, cfg: Config{ConfirmInferred: true}})

	r := e.say(t, "s1", "flights from Boston to Chicago")
	assert.Equal(t, PhaseReadyToInvoke, r.Phase)
	assert.Equal(t, "Just to check, you're looking for a flight from Boston to Chicago on Tue 20 Oct 2026. Is that right?", r.Text)
	assert.Equal(t, 0, e.search.count())

	r = e.say(t, "s1", "yes please")
	assert.Equal(t, PhaseResponding, r.Phase)
	assert.Equal(t, 1, e.search.count())
}

func TestRejectedConfirmationAsksWhatToChange(t *testing.T) {
	llm := &scriptedLLM{text: `{"intent":"flight_search","departure_date":"2026-10-20"}`}
	e := newEnv(t, envOptions{llm: llm, cfg: Config{ConfirmInferred: true}})

	e.say(t, "s1", "flights from Boston to Chicago")
	r := e.say(t, "s1", "no")
	assert.Equal(t, changeWhatText, r.Text)
	assert.Equal(t, 0, e.search.count())
}

func TestDegradedExtractionStillAsks(t *testing.T) {
	llm := &scriptedLLM{err: &ai.StatusError{Provider: "fake_llm", Code: http.StatusBadGateway}}
	e := newEnv(t, envOptions{llm: llm})

	r := e.say(t, "s1", "flights from Boston to Chicago")
	assert.True(t, r.Degraded)
	assert.Equal(t, PhaseCollectingParameters, r.Phase)
	assert.Equal(t, []params.Field{params.FieldDepartureDate}, r.Missing)
}

func TestIntentSwitchKeepsFlightParameters(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.say(t, "s1", "fly from Boston to Chicago tomorrow")

	r := e.say(t, "s1", "what's the weather like in Chicago?")
	assert.Equal(t, params.IntentDestinationInfo, r.Intent)
	assert.Equal(t, "weather and best time to visit Chicago", e.search.last().Text)
	assert.Equal(t, "Boston", r.Parameters.Flight.Origin)
}

func TestHotelSearchFlow(t *testing.T) {
	e := newEnv(t, envOptions{})
	r := e.say(t, "s1", "I need a hotel in Lisbon with a pool")
	assert.Equal(t, []params.Field{params.FieldCheckIn, params.FieldCheckOut}, r.Missing)
	assert.Equal(t, "Got it, a hotel in Lisbon with pool. What's your check-in date?", r.Text)

	r = e.say(t, "s1", "november 2")
	assert.Equal(t, []params.Field{params.FieldCheckOut}, r.Missing)

	r = e.say(t, "s1", "for 3 nights")
	assert.Equal(t, PhaseResponding, r.Phase)
	assert.Equal(t, 3, r.Parameters.Hotel.Nights())
	assert.Equal(t, search.KindHotels, e.search.last().Kind)
}

func TestResetForgetsSession(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.say(t, "s1", "Find flights from Boston to Chicago")
	require.NoError(t, e.orch.Reset(context.Background(), "s1"))

	snap, err := e.orch.Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version)
	assert.Equal(t, PhaseAwaitingIntent, snap.Phase)
}

func TestSchemaWithoutToolFieldStillAsksForIt(t *testing.T) {
	schema := params.DefaultSchema()
	schema[params.IntentFlightSearch] = params.IntentSchema{
		Required: []params.Field{params.FieldOrigin, params.FieldDestination},
		Priority: []params.Field{params.FieldOrigin, params.FieldDestination},
	}
	e := newEnv(t, envOptions{schema: schema})

	r := e.say(t, "s1", "Find flights from BOS to ORD")
	assert.False(t, r.Degraded)
	assert.Equal(t, PhaseCollectingParameters, r.Phase)
	assert.Equal(t, []params.Field{params.FieldDepartureDate}, r.Missing)
	assert.Contains(t, r.Text, "What date would you like to depart?")
	assert.Equal(t, 0, e.search.count())

	r = e.say(t, "s1", "next Monday")
	assert.Equal(t, PhaseResponding, r.Phase)
	assert.False(t, r.Degraded)
	assert.Equal(t, 1, e.search.count())
}

// strictTool advertises no required parameters but refuses to run.
type strictTool struct{}

func (strictTool) Name() string                       { return "destination_info" }
func (strictTool) Intent() params.Intent              { return params.IntentDestinationInfo }
func (strictTool) RequiredParameters() []params.Field { return nil }
func (strictTool) Execute(context.Context, params.ParameterSet) (*tools.Result, error) {
	return nil, fmt.Errorf("destination_info: %w: topic", tools.ErrMissingParameters)
}

func TestToolMissingParametersIsNotAnOutage(t *testing.T) {
	e := newEnv(t, envOptions{tools: []tools.Tool{strictTool{}}})

	r := e.say(t, "s1", "tell me about Lisbon")
	assert.False(t, r.Degraded)
	assert.Equal(t, tryAgainText, r.Text)
	assert.Equal(t, PhaseCollectingParameters, r.Phase)
	assert.Equal(t, 0, e.search.count())
}
