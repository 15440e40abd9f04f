// README: Typed travel parameters, one section per intent.
package params

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"cloud.google.com/go/civil"
)

type Intent string

const (
	IntentFlightSearch    Intent = "flight_search"
	IntentHotelSearch     Intent = "hotel_search"
	IntentDestinationInfo Intent = "destination_info"
	IntentUnclear         Intent = "unclear"
)

// Known reports whether i is one of the actionable intents.
func (i Intent) Known() bool {
	switch i {
	case IntentFlightSearch, IntentHotelSearch, IntentDestinationInfo:
		return true
	}
	return false
}

type Field string

const (
	FieldOrigin         Field = "origin"
	FieldDestination    Field = "destination"
	FieldDepartureDate  Field = "departure_date"
	FieldReturnDate     Field = "return_date"
	FieldPassengerCount Field = "passenger_count"
	FieldCabinClass     Field = "cabin_class"
	FieldLocation       Field = "location"
	FieldCheckIn        Field = "check_in"
	FieldCheckOut       Field = "check_out"
	FieldGuestCount     Field = "guest_count"
	FieldPreferences    Field = "preferences"
	FieldTopic          Field = "topic"
)

// Kind groups fields by the shape of their value.
type Kind int

const (
	KindText Kind = iota
	KindPlace
	KindDate
	KindCount
	KindEnum
	KindTags
)

func (f Field) Kind() Kind {
	switch f {
	case FieldOrigin, FieldDestination, FieldLocation:
		return KindPlace
	case FieldDepartureDate, FieldReturnDate, FieldCheckIn, FieldCheckOut:
		return KindDate
	case FieldPassengerCount, FieldGuestCount:
		return KindCount
	case FieldCabinClass, FieldTopic:
		return KindEnum
	case FieldPreferences:
		return KindTags
	}
	return KindText
}

type CabinClass string

const (
	CabinEconomy  CabinClass = "economy"
	CabinBusiness CabinClass = "business"
	CabinFirst    CabinClass = "first"
)

func (c CabinClass) Valid() bool {
	return c == CabinEconomy || c == CabinBusiness || c == CabinFirst
}

type Topic string

const (
	TopicWeather     Topic = "weather"
	TopicAttractions Topic = "attractions"
	TopicDocuments   Topic = "documents"
	TopicTransport   Topic = "transport"
	TopicGeneral     Topic = "general"
)

func (t Topic) Valid() bool {
	switch t {
	case TopicWeather, TopicAttractions, TopicDocuments, TopicTransport, TopicGeneral:
		return true
	}
	return false
}

type FlightParams struct {
	Origin         string      `json:"origin,omitempty"`
	Destination    string      `json:"destination,omitempty"`
	DepartureDate  *civil.Date `json:"departure_date,omitempty"`
	ReturnDate     *civil.Date `json:"return_date,omitempty"`
	PassengerCount *int        `json:"passenger_count,omitempty"`
	CabinClass     CabinClass  `json:"cabin_class,omitempty"`
}

// Passengers returns the passenger count, defaulting to 1.
func (p FlightParams) Passengers() int {
	if p.PassengerCount == nil {
		return 1
	}
	return *p.PassengerCount
}

// Cabin returns the cabin class, defaulting to economy.
func (p FlightParams) Cabin() CabinClass {
	if p.CabinClass == "" {
		return CabinEconomy
	}
	return p.CabinClass
}

type HotelParams struct {
	Location    string      `json:"location,omitempty"`
	CheckIn     *civil.Date `json:"check_in,omitempty"`
	CheckOut    *civil.Date `json:"check_out,omitempty"`
	GuestCount  *int        `json:"guest_count,omitempty"`
	Preferences []string    `json:"preferences,omitempty"`
}

// Guests returns the guest count, defaulting to 1.
func (p HotelParams) Guests() int {
	if p.GuestCount == nil {
		return 1
	}
	return *p.GuestCount
}

// Nights is the stay length, or 0 when either date is unset.
func (p HotelParams) Nights() int {
	if p.CheckIn == nil || p.CheckOut == nil {
		return 0
	}
	return p.CheckOut.DaysSince(*p.CheckIn)
}

type InfoParams struct {
	Destination string `json:"destination,omitempty"`
	Topic       Topic  `json:"topic,omitempty"`
}

// TopicOrDefault returns the topic, defaulting to general.
func (p InfoParams) TopicOrDefault() Topic {
	if p.Topic == "" {
		return TopicGeneral
	}
	return p.Topic
}

// ParameterSet keeps one section per intent so a change of intent does not
// discard what was already collected for another one.
type ParameterSet struct {
	Flight FlightParams `json:"flight"`
	Hotel  HotelParams  `json:"hotel"`
	Info   InfoParams   `json:"info"`
}

// FieldsFor lists every field that belongs to intent.
func FieldsFor(intent Intent) []Field {
	switch intent {
	case IntentFlightSearch:
		return []Field{FieldOrigin, FieldDestination, FieldDepartureDate, FieldReturnDate, FieldPassengerCount, FieldCabinClass}
	case IntentHotelSearch:
		return []Field{FieldLocation, FieldCheckIn, FieldCheckOut, FieldGuestCount, FieldPreferences}
	case IntentDestinationInfo:
		return []Field{FieldDestination, FieldTopic}
	}
	return nil
}

// Has reports whether field is set in the section for intent.
func (s ParameterSet) Has(intent Intent, field Field) bool {
	switch intent {
	case IntentFlightSearch:
		p := s.Flight
		switch field {
		case FieldOrigin:
			return p.Origin != ""
		case FieldDestination:
			return p.Destination != ""
		case FieldDepartureDate:
			return p.DepartureDate != nil
		case FieldReturnDate:
			return p.ReturnDate != nil
		case FieldPassengerCount:
			return p.PassengerCount != nil
		case FieldCabinClass:
			return p.CabinClass != ""
		}
	case IntentHotelSearch:
		p := s.Hotel
		switch field {
		case FieldLocation:
			return p.Location != ""
		case FieldCheckIn:
			return p.CheckIn != nil
		case FieldCheckOut:
			return p.CheckOut != nil
		case FieldGuestCount:
			return p.GuestCount != nil
		case FieldPreferences:
			return len(p.Preferences) > 0
		}
	case IntentDestinationInfo:
		p := s.Info
		switch field {
		case FieldDestination:
			return p.Destination != ""
		case FieldTopic:
			return p.Topic != ""
		}
	}
	return false
}

// Clear unsets field in the section for intent.
func (s *ParameterSet) Clear(intent Intent, field Field) {
	switch intent {
	case IntentFlightSearch:
		p := &s.Flight
		switch field {
		case FieldOrigin:
			p.Origin = ""
		case FieldDestination:
			p.Destination = ""
		case FieldDepartureDate:
			p.DepartureDate = nil
		case FieldReturnDate:
			p.ReturnDate = nil
		case FieldPassengerCount:
			p.PassengerCount = nil
		case FieldCabinClass:
			p.CabinClass = ""
		}
	case IntentHotelSearch:
		p := &s.Hotel
		switch field {
		case FieldLocation:
			p.Location = ""
		case FieldCheckIn:
			p.CheckIn = nil
		case FieldCheckOut:
			p.CheckOut = nil
		case FieldGuestCount:
			p.GuestCount = nil
		case FieldPreferences:
			p.Preferences = nil
		}
	case IntentDestinationInfo:
		p := &s.Info
		switch field {
		case FieldDestination:
			p.Destination = ""
		case FieldTopic:
			p.Topic = ""
		}
	}
}

// Merge copies the fields of src that are set for intent into s, skipping
// fields for which allow returns false. It returns the fields it wrote.
// Fields not set in src are left untouched.
func (s *ParameterSet) Merge(intent Intent, src ParameterSet, allow func(Field) bool) []Field {
	var written []Field
	for _, f := range FieldsFor(intent) {
		if !src.Has(intent, f) {
			continue
		}
		if allow != nil && !allow(f) {
			continue
		}
		s.copyField(intent, f, src)
		written = append(written, f)
	}
	return written
}

func (s *ParameterSet) copyField(intent Intent, f Field, src ParameterSet) {
	switch intent {
	case IntentFlightSearch:
		d, o := &s.Flight, src.Flight
		switch f {
		case FieldOrigin:
			d.Origin = o.Origin
		case FieldDestination:
			d.Destination = o.Destination
		case FieldDepartureDate:
			d.DepartureDate = cloneDate(o.DepartureDate)
		case FieldReturnDate:
			d.ReturnDate = cloneDate(o.ReturnDate)
		case FieldPassengerCount:
			d.PassengerCount = cloneCount(o.PassengerCount)
		case FieldCabinClass:
			d.CabinClass = o.CabinClass
		}
	case IntentHotelSearch:
		d, o := &s.Hotel, src.Hotel
		switch f {
		case FieldLocation:
			d.Location = o.Location
		case FieldCheckIn:
			d.CheckIn = cloneDate(o.CheckIn)
		case FieldCheckOut:
			d.CheckOut = cloneDate(o.CheckOut)
		case FieldGuestCount:
			d.GuestCount = cloneCount(o.GuestCount)
		case FieldPreferences:
			d.Preferences = mergeTags(d.Preferences, o.Preferences)
		}
	case IntentDestinationInfo:
		d, o := &s.Info, src.Info
		switch f {
		case FieldDestination:
			d.Destination = o.Destination
		case FieldTopic:
			d.Topic = o.Topic
		}
	}
}

// Text returns the string value of a place or enum field, or "".
func (s ParameterSet) Text(intent Intent, field Field) string {
	switch {
	case intent == IntentFlightSearch && field == FieldOrigin:
		return s.Flight.Origin
	case intent == IntentFlightSearch && field == FieldDestination:
		return s.Flight.Destination
	case intent == IntentFlightSearch && field == FieldCabinClass:
		return string(s.Flight.CabinClass)
	case intent == IntentHotelSearch && field == FieldLocation:
		return s.Hotel.Location
	case intent == IntentDestinationInfo && field == FieldDestination:
		return s.Info.Destination
	case intent == IntentDestinationInfo && field == FieldTopic:
		return string(s.Info.Topic)
	}
	return ""
}

// SetText sets a place field. Other fields are ignored.
func (s *ParameterSet) SetText(intent Intent, field Field, v string) {
	switch {
	case intent == IntentFlightSearch && field == FieldOrigin:
		s.Flight.Origin = v
	case intent == IntentFlightSearch && field == FieldDestination:
		s.Flight.Destination = v
	case intent == IntentHotelSearch && field == FieldLocation:
		s.Hotel.Location = v
	case intent == IntentDestinationInfo && field == FieldDestination:
		s.Info.Destination = v
	}
}

// SetDate sets a date field. Other fields are ignored.
func (s *ParameterSet) SetDate(intent Intent, field Field, d civil.Date) {
	v := d
	switch {
	case intent == IntentFlightSearch && field == FieldDepartureDate:
		s.Flight.DepartureDate = &v
	case intent == IntentFlightSearch && field == FieldReturnDate:
		s.Flight.ReturnDate = &v
	case intent == IntentHotelSearch && field == FieldCheckIn:
		s.Hotel.CheckIn = &v
	case intent == IntentHotelSearch && field == FieldCheckOut:
		s.Hotel.CheckOut = &v
	}
}

// SetCount sets a count field. Zero and negative counts are stored as
// given; Validate rejects them. Other fields are ignored.
func (s *ParameterSet) SetCount(intent Intent, field Field, n int) {
	v := n
	switch {
	case intent == IntentFlightSearch && field == FieldPassengerCount:
		s.Flight.PassengerCount = &v
	case intent == IntentHotelSearch && field == FieldGuestCount:
		s.Hotel.GuestCount = &v
	}
}

// Fingerprint is a stable hash of the section for intent, used to decide
// whether a cached tool result still matches the parameters.
func (s ParameterSet) Fingerprint(intent Intent) string {
	var section any
	switch intent {
	case IntentFlightSearch:
		section = s.Flight
	case IntentHotelSearch:
		h := s.Hotel
		h.Preferences = slices.Sorted(slices.Values(h.Preferences))
		section = h
	case IntentDestinationInfo:
		section = s.Info
	default:
		return ""
	}
	b, _ := json.Marshal(section)
	sum := sha256.Sum256(append([]byte(string(intent)+":"), b...))
	return hex.EncodeToString(sum[:8])
}

func cloneDate(d *civil.Date) *civil.Date {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneCount(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// Count returns a pointer to n, for literals.
func Count(n int) *int { return &n }

func mergeTags(dst, src []string) []string {
	out := slices.Clone(dst)
	for _, t := range src {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
