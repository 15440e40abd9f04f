package tools

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"wayfarer/internal/modules/params"
	"wayfarer/internal/search"
	"wayfarer/internal/types"
)

type HotelOption struct {
	Name        string       `json:"name"`
	Address     string       `json:"address,omitempty"`
	Link        string       `json:"link,omitempty"`
	Rating      float64      `json:"rating,omitempty"`
	Reviews     int          `json:"reviews,omitempty"`
	PriceLevel  string       `json:"price_level,omitempty"`
	Nightly     *types.Money `json:"nightly,omitempty"`
	Total       *types.Money `json:"total,omitempty"`
	Matches     []string     `json:"matches,omitempty"`
	Description string       `json:"description,omitempty"`
	Source      string       `json:"source"`
}

type HotelResult struct {
	Location    string        `json:"location"`
	CheckIn     civil.Date    `json:"check_in"`
	CheckOut    civil.Date    `json:"check_out"`
	Nights      int           `json:"nights"`
	Guests      int           `json:"guests"`
	Preferences []string      `json:"preferences,omitempty"`
	Options     []HotelOption `json:"options"`
}

type HotelTool struct {
	searcher Searcher
	limit    int
}

func NewHotelTool(searcher Searcher) *HotelTool {
	return &HotelTool{searcher: searcher, limit: 5}
}

func (t *HotelTool) Name() string          { return "hotel_search" }
func (t *HotelTool) Intent() params.Intent { return params.IntentHotelSearch }
func (t *HotelTool) RequiredParameters() []params.Field {
	return []params.Field{params.FieldLocation, params.FieldCheckIn, params.FieldCheckOut}
}

func (t *HotelTool) Execute(ctx context.Context, set params.ParameterSet) (*Result, error) {
	if err := checkRequired(t, set); err != nil {
		return nil, err
	}
	p := set.Hotel
	text := "hotels in " + p.Location
	if len(p.Preferences) > 0 {
		text += " with " + strings.Join(p.Preferences, " and ")
	}
	resp, err := t.searcher.Search(ctx, search.Query{
		Kind:     search.KindHotels,
		Text:     text,
		Location: p.Location,
		Filters: map[string]string{
			"check_in":  p.CheckIn.String(),
			"check_out": p.CheckOut.String(),
			"guests":    strconv.Itoa(p.Guests()),
		},
		Limit: t.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("hotel search: %w", err)
	}

	out := HotelResult{
		Location:    p.Location,
		CheckIn:     *p.CheckIn,
		CheckOut:    *p.CheckOut,
		Nights:      p.Nights(),
		Guests:      p.Guests(),
		Preferences: p.Preferences,
	}
	for _, r := range resp.Results {
		out.Options = append(out.Options, hotelOption(r, p.Preferences, out.Nights))
	}
	// Options matching more preferences first, then by rating.
	slices.SortStableFunc(out.Options, func(a, b HotelOption) int {
		if c := cmp.Compare(len(b.Matches), len(a.Matches)); c != 0 {
			return c
		}
		return cmp.Compare(b.Rating, a.Rating)
	})
	if len(out.Options) > t.limit {
		out.Options = out.Options[:t.limit]
	}

	return &Result{
		Tool:      t.Name(),
		Intent:    t.Intent(),
		Summary:   out.summary(),
		Data:      out,
		Provider:  resp.Provider,
		FromCache: resp.FromCache,
	}, nil
}

func hotelOption(r search.Result, prefs []string, nights int) HotelOption {
	o := HotelOption{
		Name:        r.Title,
		Address:     r.Address,
		Link:        r.Link,
		Rating:      r.Rating,
		Reviews:     r.RatingCount,
		Description: r.Snippet,
		Source:      r.Source,
	}
	if strings.Trim(r.Price, "$") == "" && r.Price != "" {
		o.PriceLevel = r.Price
	} else if nightly, ok := findPrice(r.Price, r.Snippet); ok {
		o.Nightly = &nightly
		if nights > 0 {
			total := nightly.Times(nights)
			o.Total = &total
		}
	}
	text := strings.ToLower(r.Title + " " + r.Snippet)
	for _, pref := range prefs {
		if strings.Contains(text, strings.ToLower(pref)) {
			o.Matches = append(o.Matches, pref)
		}
	}
	return o
}

func (r HotelResult) summary() string {
	var b strings.Builder
	in := r.CheckIn.In(time.UTC).Format("Mon 2 Jan")
	outDay := r.CheckOut.In(time.UTC).Format("Mon 2 Jan 2006")
	if len(r.Options) == 0 {
		fmt.Fprintf(&b, "I couldn't find hotels in %s for %s to %s.", r.Location, in, outDay)
		return b.String()
	}
	fmt.Fprintf(&b, "Found %s in %s for %s to %s (%s, %s).",
		plural(len(r.Options), "hotel"), r.Location, in, outDay, plural(r.Nights, "night"), plural(r.Guests, "guest"))
	top := r.Options[0]
	fmt.Fprintf(&b, " Top pick: %s", top.Name)
	if top.Rating > 0 {
		fmt.Fprintf(&b, ", rated %.1f", top.Rating)
	}
	if top.Total != nil {
		fmt.Fprintf(&b, ", about %s for the stay", top.Total)
	}
	b.WriteString(".")
	if len(r.Preferences) > 0 && len(top.Matches) > 0 {
		fmt.Fprintf(&b, " It mentions %s.", strings.Join(top.Matches, ", "))
	}
	return b.String()
}
