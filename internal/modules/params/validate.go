// README: Pure structural validation of travel parameters.
package params

import (
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
)

type Reason string

const (
	ReasonUnresolvedLocation Reason = "unresolved_location"
	ReasonDateOrder          Reason = "date_order"
	ReasonOutOfRange         Reason = "out_of_range"
	ReasonDateInPast         Reason = "date_in_past"
)

// ValidationError is the Invalid(field, reason) outcome of Validate.
type ValidationError struct {
	Field  Field
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LocationLookup answers whether a free-text place is a known airport or
// city. Implementations must not block.
type LocationLookup interface {
	Known(name string) bool
}

type Rules struct {
	// Today is the reference date; the zero value disables the past-date check.
	Today         civil.Date
	Locations     LocationLookup
	MaxPassengers int
	MaxGuests     int
}

const maxPlaceLen = 100

var iataPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// IsIATA reports whether v looks like an IATA airport or city code.
func IsIATA(v string) bool {
	return iataPattern.MatchString(v)
}

// Validate checks the fields of the section for intent that are set. Unset
// fields are not an error here; see Schema.Missing. It returns nil when the
// set is valid, otherwise a *ValidationError for the first violation.
func Validate(intent Intent, set ParameterSet, rules Rules) error {
	if rules.MaxPassengers == 0 {
		rules.MaxPassengers = 9
	}
	if rules.MaxGuests == 0 {
		rules.MaxGuests = 10
	}
	switch intent {
	case IntentFlightSearch:
		return validateFlight(set.Flight, rules)
	case IntentHotelSearch:
		return validateHotel(set.Hotel, rules)
	case IntentDestinationInfo:
		return validateInfo(set.Info)
	}
	return nil
}

func validateFlight(p FlightParams, r Rules) error {
	if p.Origin != "" && !resolvable(p.Origin, r.Locations) {
		return &ValidationError{Field: FieldOrigin, Reason: ReasonUnresolvedLocation}
	}
	if p.Destination != "" {
		if !resolvable(p.Destination, r.Locations) {
			return &ValidationError{Field: FieldDestination, Reason: ReasonUnresolvedLocation}
		}
		if strings.EqualFold(p.Origin, p.Destination) {
			return &ValidationError{Field: FieldDestination, Reason: ReasonUnresolvedLocation}
		}
	}
	if p.DepartureDate != nil {
		if !p.DepartureDate.IsValid() {
			return &ValidationError{Field: FieldDepartureDate, Reason: ReasonOutOfRange}
		}
		if inPast(*p.DepartureDate, r.Today) {
			return &ValidationError{Field: FieldDepartureDate, Reason: ReasonDateInPast}
		}
	}
	if p.ReturnDate != nil {
		if !p.ReturnDate.IsValid() {
			return &ValidationError{Field: FieldReturnDate, Reason: ReasonOutOfRange}
		}
		if p.DepartureDate != nil && !p.ReturnDate.After(*p.DepartureDate) {
			return &ValidationError{Field: FieldReturnDate, Reason: ReasonDateOrder}
		}
	}
	if n := p.PassengerCount; n != nil && (*n < 1 || *n > r.MaxPassengers) {
		return &ValidationError{Field: FieldPassengerCount, Reason: ReasonOutOfRange}
	}
	if p.CabinClass != "" && !p.CabinClass.Valid() {
		return &ValidationError{Field: FieldCabinClass, Reason: ReasonOutOfRange}
	}
	return nil
}

func validateHotel(p HotelParams, r Rules) error {
	if p.Location != "" && !plausiblePlace(p.Location) {
		return &ValidationError{Field: FieldLocation, Reason: ReasonUnresolvedLocation}
	}
	if p.CheckIn != nil {
		if !p.CheckIn.IsValid() {
			return &ValidationError{Field: FieldCheckIn, Reason: ReasonOutOfRange}
		}
		if inPast(*p.CheckIn, r.Today) {
			return &ValidationError{Field: FieldCheckIn, Reason: ReasonDateInPast}
		}
	}
	if p.CheckOut != nil {
		if !p.CheckOut.IsValid() {
			return &ValidationError{Field: FieldCheckOut, Reason: ReasonOutOfRange}
		}
		if p.CheckIn != nil && !p.CheckOut.After(*p.CheckIn) {
			return &ValidationError{Field: FieldCheckOut, Reason: ReasonDateOrder}
		}
	}
	if n := p.GuestCount; n != nil && (*n < 1 || *n > r.MaxGuests) {
		return &ValidationError{Field: FieldGuestCount, Reason: ReasonOutOfRange}
	}
	return nil
}

func validateInfo(p InfoParams) error {
	if p.Destination != "" && !plausiblePlace(p.Destination) {
		return &ValidationError{Field: FieldDestination, Reason: ReasonUnresolvedLocation}
	}
	if p.Topic != "" && !p.Topic.Valid() {
		return &ValidationError{Field: FieldTopic, Reason: ReasonOutOfRange}
	}
	return nil
}

func resolvable(place string, lookup LocationLookup) bool {
	if IsIATA(place) {
		return true
	}
	return lookup != nil && lookup.Known(place)
}

func plausiblePlace(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && len(v) <= maxPlaceLen
}

func inPast(d, today civil.Date) bool {
	return today != (civil.Date{}) && d.Before(today)
}
