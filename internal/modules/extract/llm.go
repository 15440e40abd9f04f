// README: Model-assisted extraction pass for what the patterns could not settle.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"wayfarer/internal/ai"
	"wayfarer/internal/modules/params"
)

// Completer is the slice of the provider gateway the extractor needs.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error)
}

const systemPrompt = `You extract travel-planning parameters from one user message.
Classify the intent as flight_search, hotel_search, destination_info or unclear.
Only report values the user actually stated in this message; leave everything else null.
Dates must be ISO 8601 (YYYY-MM-DD), resolved against the given current date.
Places are city names or IATA airport codes exactly as the user meant them.`

var extractionSchema = &ai.Schema{
	Type: ai.TypeObject,
	Properties: map[string]*ai.Schema{
		"intent": {Type: ai.TypeString, Enum: []string{
			string(params.IntentFlightSearch), string(params.IntentHotelSearch),
			string(params.IntentDestinationInfo), string(params.IntentUnclear),
		}},
		"origin":          {Type: ai.TypeString, Nullable: true},
		"destination":     {Type: ai.TypeString, Nullable: true},
		"departure_date":  {Type: ai.TypeString, Nullable: true, Description: "YYYY-MM-DD"},
		"return_date":     {Type: ai.TypeString, Nullable: true, Description: "YYYY-MM-DD"},
		"passenger_count": {Type: ai.TypeInteger, Nullable: true},
		"cabin_class":     {Type: ai.TypeString, Nullable: true, Enum: []string{"economy", "business", "first"}},
		"location":        {Type: ai.TypeString, Nullable: true},
		"check_in":        {Type: ai.TypeString, Nullable: true, Description: "YYYY-MM-DD"},
		"check_out":       {Type: ai.TypeString, Nullable: true, Description: "YYYY-MM-DD"},
		"guest_count":     {Type: ai.TypeInteger, Nullable: true},
		"preferences":     {Type: ai.TypeArray, Items: &ai.Schema{Type: ai.TypeString}},
		"topic":           {Type: ai.TypeString, Nullable: true, Enum: []string{"weather", "attractions", "documents", "transport", "general"}},
	},
	Required: []string{"intent"},
}

type proposal struct {
	Intent         string   `json:"intent"`
	Origin         *string  `json:"origin"`
	Destination    *string  `json:"destination"`
	DepartureDate  *string  `json:"departure_date"`
	ReturnDate     *string  `json:"return_date"`
	PassengerCount *int     `json:"passenger_count"`
	CabinClass     *string  `json:"cabin_class"`
	Location       *string  `json:"location"`
	CheckIn        *string  `json:"check_in"`
	CheckOut       *string  `json:"check_out"`
	GuestCount     *int     `json:"guest_count"`
	Preferences    []string `json:"preferences"`
	Topic          *string  `json:"topic"`
}

func buildPrompt(utterance string, prior Prior, today civil.Date) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current date: %s (%s)\n", today, weekdayOf(today))
	if prior.Intent.Known() {
		fmt.Fprintf(&b, "Conversation intent so far: %s\n", prior.Intent)
		if known, err := json.Marshal(prior.Parameters); err == nil {
			fmt.Fprintf(&b, "Parameters collected so far: %s\n", known)
		}
	}
	if prior.PendingField != "" {
		fmt.Fprintf(&b, "The assistant just asked the user for: %s\n", prior.PendingField)
	}
	fmt.Fprintf(&b, "User message: %q\n", utterance)
	return b.String()
}

func (e *Extractor) askModel(ctx context.Context, utterance string, prior Prior, today civil.Date) (*proposal, error) {
	out, err := e.llm.Complete(ctx, ai.CompletionRequest{
		System:      systemPrompt,
		Prompt:      buildPrompt(utterance, prior, today),
		Schema:      extractionSchema,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}
	var p proposal
	if err := json.Unmarshal([]byte(ai.CleanJSON(out.Text)), &p); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &p, nil
}

// toParams converts a model proposal into the section for intent, dropping
// values that do not parse. Relative dates the model echoed back verbatim
// are resolved the same way the pattern pass would.
func (p *proposal) toParams(intent params.Intent, today civil.Date) params.ParameterSet {
	var out params.ParameterSet
	place := func(v *string) string {
		if v == nil {
			return ""
		}
		s := strings.TrimSpace(*v)
		if len(s) > 100 {
			return ""
		}
		return s
	}
	date := func(v *string) *civil.Date {
		if v == nil || strings.TrimSpace(*v) == "" {
			return nil
		}
		d, ok := ResolveDate(*v, today)
		if !ok {
			return nil
		}
		return &d
	}
	// A model reply of 0 usually means "not stated", so it is dropped
	// rather than reported as an invalid count.
	count := func(v *int) *int {
		if v == nil || *v < 1 {
			return nil
		}
		return params.Count(*v)
	}

	switch intent {
	case params.IntentFlightSearch:
		out.Flight = params.FlightParams{
			Origin:         place(p.Origin),
			Destination:    place(p.Destination),
			DepartureDate:  date(p.DepartureDate),
			ReturnDate:     date(p.ReturnDate),
			PassengerCount: count(p.PassengerCount),
		}
		if p.CabinClass != nil && params.CabinClass(*p.CabinClass).Valid() {
			out.Flight.CabinClass = params.CabinClass(*p.CabinClass)
		}
	case params.IntentHotelSearch:
		out.Hotel = params.HotelParams{
			Location:    firstNonEmpty(place(p.Location), place(p.Destination)),
			CheckIn:     date(p.CheckIn),
			CheckOut:    date(p.CheckOut),
			GuestCount:  count(p.GuestCount),
			Preferences: p.Preferences,
		}
	case params.IntentDestinationInfo:
		out.Info.Destination = firstNonEmpty(place(p.Destination), place(p.Location))
		if p.Topic != nil && params.Topic(*p.Topic).Valid() {
			out.Info.Topic = params.Topic(*p.Topic)
		}
	}
	return out
}
