// README: Required-field lists and question priority per intent.
package params

import (
	"fmt"
	"slices"
)

// IntentSchema says which fields must be present before the intent's tool
// can run, and in which order missing fields are asked about.
type IntentSchema struct {
	Required []Field `mapstructure:"required"`
	Priority []Field `mapstructure:"priority"`
}

type Schema map[Intent]IntentSchema

func DefaultSchema() Schema {
	return Schema{
		IntentFlightSearch: {
			Required: []Field{FieldOrigin, FieldDestination, FieldDepartureDate},
			Priority: []Field{FieldOrigin, FieldDestination, FieldDepartureDate, FieldReturnDate, FieldPassengerCount},
		},
		IntentHotelSearch: {
			Required: []Field{FieldLocation, FieldCheckIn, FieldCheckOut},
			Priority: []Field{FieldLocation, FieldCheckIn, FieldCheckOut, FieldGuestCount},
		},
		IntentDestinationInfo: {
			Required: []Field{FieldDestination},
			Priority: []Field{FieldDestination, FieldTopic},
		},
	}
}

// Validate rejects schemas that reference fields outside their intent.
func (s Schema) Validate() error {
	for intent, is := range s {
		if !intent.Known() {
			return fmt.Errorf("schema: unknown intent %q", intent)
		}
		allowed := FieldsFor(intent)
		for _, f := range append(slices.Clone(is.Required), is.Priority...) {
			if !slices.Contains(allowed, f) {
				return fmt.Errorf("schema: field %q does not belong to %s", f, intent)
			}
		}
	}
	return nil
}

// Required returns the required fields of intent.
func (s Schema) Required(intent Intent) []Field {
	return s[intent].Required
}

// Missing returns the required fields of intent that are not set, ordered by
// priority. Required fields absent from the priority list come last in
// declaration order.
func (s Schema) Missing(intent Intent, set ParameterSet) []Field {
	is, ok := s[intent]
	if !ok {
		return nil
	}
	var missing []Field
	for _, f := range is.Priority {
		if slices.Contains(is.Required, f) && !set.Has(intent, f) {
			missing = append(missing, f)
		}
	}
	for _, f := range is.Required {
		if !slices.Contains(is.Priority, f) && !set.Has(intent, f) {
			missing = append(missing, f)
		}
	}
	return missing
}
