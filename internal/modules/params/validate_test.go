package params

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

type lookupSet map[string]bool

func (l lookupSet) Known(name string) bool { return l[name] }

func date(y int, m int, d int) *civil.Date {
	v := civil.Date{Year: y, Month: time.Month(m), Day: d}
	return &v
}

func TestValidateHotelDateOrder(t *testing.T) {
	checkIn := date(2026, 6, 10)
	for offset := -3; offset <= 5; offset++ {
		out := checkIn.AddDays(offset)
		set := ParameterSet{Hotel: HotelParams{Location: "Lisbon", CheckIn: checkIn, CheckOut: &out}}
		err := Validate(IntentHotelSearch, set, Rules{})
		if offset > 0 {
			if err != nil {
				t.Errorf("check_out +%d: expected valid, got %v", offset, err)
			}
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("check_out %+d: expected ValidationError, got %v", offset, err)
		}
		if verr.Field != FieldCheckOut || verr.Reason != ReasonDateOrder {
			t.Errorf("check_out %+d: got %s/%s", offset, verr.Field, verr.Reason)
		}
	}
}

func TestValidateFlight(t *testing.T) {
	known := lookupSet{"Boston": true, "Chicago": true}
	today := civil.Date{Year: 2026, Month: 3, Day: 4}

	cases := []struct {
		name   string
		params FlightParams
		field  Field
		reason Reason
	}{
		{name: "iata codes", params: FlightParams{Origin: "JFK", Destination: "NRT"}},
		{name: "known cities", params: FlightParams{Origin: "Boston", Destination: "Chicago", DepartureDate: date(2026, 3, 9)}},
		{name: "unknown origin", params: FlightParams{Origin: "Atlantis"}, field: FieldOrigin, reason: ReasonUnresolvedLocation},
		{name: "same origin and destination", params: FlightParams{Origin: "BOS", Destination: "BOS"}, field: FieldDestination, reason: ReasonUnresolvedLocation},
		{name: "return before departure", params: FlightParams{Origin: "BOS", DepartureDate: date(2026, 3, 9), ReturnDate: date(2026, 3, 8)}, field: FieldReturnDate, reason: ReasonDateOrder},
		{name: "return same day", params: FlightParams{Origin: "BOS", DepartureDate: date(2026, 3, 9), ReturnDate: date(2026, 3, 9)}, field: FieldReturnDate, reason: ReasonDateOrder},
		{name: "departure in past", params: FlightParams{DepartureDate: date(2026, 3, 1)}, field: FieldDepartureDate, reason: ReasonDateInPast},
		{name: "too many passengers", params: FlightParams{PassengerCount: Count(10)}, field: FieldPassengerCount, reason: ReasonOutOfRange},
		{name: "negative passengers", params: FlightParams{PassengerCount: Count(-1)}, field: FieldPassengerCount, reason: ReasonOutOfRange},
		{name: "zero passengers", params: FlightParams{PassengerCount: Count(0)}, field: FieldPassengerCount, reason: ReasonOutOfRange},
		{name: "nine passengers", params: FlightParams{PassengerCount: Count(9)}},
		{name: "bad cabin", params: FlightParams{CabinClass: "steerage"}, field: FieldCabinClass, reason: ReasonOutOfRange},
	}
	for _, tc := range cases {
		err := Validate(IntentFlightSearch, ParameterSet{Flight: tc.params}, Rules{Today: today, Locations: known})
		if tc.field == "" {
			if err != nil {
				t.Errorf("%s: expected valid, got %v", tc.name, err)
			}
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
			continue
		}
		if verr.Field != tc.field || verr.Reason != tc.reason {
			t.Errorf("%s: got %s/%s, want %s/%s", tc.name, verr.Field, verr.Reason, tc.field, tc.reason)
		}
	}
}

func TestValidateGuestRange(t *testing.T) {
	err := Validate(IntentHotelSearch, ParameterSet{Hotel: HotelParams{GuestCount: Count(11)}}, Rules{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != ReasonOutOfRange {
		t.Fatalf("expected out_of_range, got %v", err)
	}
	if err := Validate(IntentHotelSearch, ParameterSet{Hotel: HotelParams{GuestCount: Count(11)}}, Rules{MaxGuests: 12}); err != nil {
		t.Fatalf("expected valid with raised maximum, got %v", err)
	}
	err = Validate(IntentHotelSearch, ParameterSet{Hotel: HotelParams{GuestCount: Count(0)}}, Rules{})
	if !errors.As(err, &verr) || verr.Field != FieldGuestCount || verr.Reason != ReasonOutOfRange {
		t.Fatalf("zero guests: expected guest_count out_of_range, got %v", err)
	}
}

func TestZeroCountIsSet(t *testing.T) {
	var set ParameterSet
	set.SetCount(IntentFlightSearch, FieldPassengerCount, 0)
	if !set.Has(IntentFlightSearch, FieldPassengerCount) {
		t.Fatal("explicit zero passengers should count as set")
	}
	prior := ParameterSet{Flight: FlightParams{PassengerCount: Count(3)}}
	if written := prior.Merge(IntentFlightSearch, set, nil); len(written) != 1 || *prior.Flight.PassengerCount != 0 {
		t.Fatalf("merge wrote %v, passengers %v", written, prior.Flight.PassengerCount)
	}
	set.Clear(IntentFlightSearch, FieldPassengerCount)
	if set.Has(IntentFlightSearch, FieldPassengerCount) {
		t.Fatal("cleared count still set")
	}
}

func TestSchemaMissingOrder(t *testing.T) {
	schema := DefaultSchema()
	set := ParameterSet{Flight: FlightParams{Destination: "Chicago"}}
	got := schema.Missing(IntentFlightSearch, set)
	want := []Field{FieldOrigin, FieldDepartureDate}
	if len(got) != len(want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("missing = %v, want %v", got, want)
		}
	}

	custom := Schema{IntentFlightSearch: {
		Required: []Field{FieldOrigin, FieldDestination, FieldDepartureDate, FieldReturnDate},
		Priority: []Field{FieldDepartureDate, FieldReturnDate},
	}}
	got = custom.Missing(IntentFlightSearch, ParameterSet{})
	want = []Field{FieldDepartureDate, FieldReturnDate, FieldOrigin, FieldDestination}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("custom missing = %v, want %v", got, want)
		}
	}
}

func TestSchemaValidateRejectsForeignField(t *testing.T) {
	bad := Schema{IntentHotelSearch: {Required: []Field{FieldOrigin}}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for flight field in hotel schema")
	}
	if err := DefaultSchema().Validate(); err != nil {
		t.Fatalf("default schema: %v", err)
	}
}

func TestMergeKeepsUntouchedFields(t *testing.T) {
	prior := ParameterSet{Flight: FlightParams{Origin: "JFK", PassengerCount: Count(2)}}
	update := ParameterSet{Flight: FlightParams{Destination: "Tokyo"}}
	written := prior.Merge(IntentFlightSearch, update, nil)
	if len(written) != 1 || written[0] != FieldDestination {
		t.Fatalf("written = %v", written)
	}
	if prior.Flight.Origin != "JFK" || prior.Flight.Destination != "Tokyo" || *prior.Flight.PassengerCount != 2 {
		t.Fatalf("unexpected merge result: %+v", prior.Flight)
	}

	blocked := prior.Merge(IntentFlightSearch, ParameterSet{Flight: FlightParams{Origin: "LAX"}}, func(f Field) bool { return f != FieldOrigin })
	if len(blocked) != 0 || prior.Flight.Origin != "JFK" {
		t.Fatalf("allow filter ignored: %v %+v", blocked, prior.Flight)
	}
}

func TestFingerprintIgnoresPreferenceOrder(t *testing.T) {
	a := ParameterSet{Hotel: HotelParams{Location: "Rome", Preferences: []string{"pool", "wifi"}}}
	b := ParameterSet{Hotel: HotelParams{Location: "Rome", Preferences: []string{"wifi", "pool"}}}
	if a.Fingerprint(IntentHotelSearch) != b.Fingerprint(IntentHotelSearch) {
		t.Fatal("fingerprints differ for reordered preferences")
	}
	b.Hotel.Location = "Milan"
	if a.Fingerprint(IntentHotelSearch) == b.Fingerprint(IntentHotelSearch) {
		t.Fatal("fingerprints equal for different locations")
	}
}
