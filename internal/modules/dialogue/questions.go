// README: Clarifying questions, confirmations and parameter descriptions.
package dialogue

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"wayfarer/internal/modules/params"
)

const (
	clarifyIntentText = "I can search flights and hotels or look up destination info. What are you planning?"
	retryLaterText    = "I'm getting a lot of requests right now. Please try again in a minute."
	degradedText      = "I couldn't reach the search services just now. Your details are saved, so just ask again in a moment."
	tryAgainText      = "Sorry, something went wrong on my side. Please try again."
	unavailableText   = "I'm having trouble with your conversation right now. Please try again shortly."
	changeWhatText    = "No problem. What would you like to change?"
)

var askText = map[params.Field]string{
	params.FieldOrigin:         "Where will you be flying from?",
	params.FieldDepartureDate:  "What date would you like to depart?",
	params.FieldReturnDate:     "When would you like to fly back?",
	params.FieldPassengerCount: "How many passengers are traveling?",
	params.FieldCabinClass:     "Which cabin would you like: economy, business or first?",
	params.FieldLocation:       "Which city would you like to stay in?",
	params.FieldCheckIn:        "What's your check-in date?",
	params.FieldCheckOut:       "What's your check-out date? You can also tell me how many nights.",
	params.FieldGuestCount:     "How many guests will be staying?",
	params.FieldTopic:          "What would you like to know about: weather, attractions, travel documents or getting around?",
}

func question(intent params.Intent, f params.Field) string {
	if f == params.FieldDestination {
		if intent == params.IntentDestinationInfo {
			return "Which destination would you like to know about?"
		}
		return "Where would you like to fly to?"
	}
	if q, ok := askText[f]; ok {
		return q
	}
	return fmt.Sprintf("Could you tell me the %s?", strings.ReplaceAll(string(f), "_", " "))
}

// invalidQuestion explains a rejected value and asks for it again. bad is
// the value that was rejected; set still holds the other fields.
func invalidQuestion(intent params.Intent, verr *params.ValidationError, bad string, set params.ParameterSet, cfg Config) string {
	ask := question(intent, verr.Field)
	switch verr.Reason {
	case params.ReasonUnresolvedLocation:
		if verr.Field == params.FieldDestination && intent == params.IntentFlightSearch && strings.EqualFold(bad, set.Flight.Origin) {
			return "The destination can't be the same as where you're leaving from. " + ask
		}
		if bad == "" {
			return ask
		}
		return fmt.Sprintf("I couldn't find a place called %q. %s", bad, ask)
	case params.ReasonDateOrder:
		switch verr.Field {
		case params.FieldReturnDate:
			return fmt.Sprintf("The return has to be after your departure on %s. %s", dayText(set.Flight.DepartureDate), ask)
		case params.FieldCheckOut:
			return fmt.Sprintf("Check-out has to be after check-in on %s. %s", dayText(set.Hotel.CheckIn), ask)
		}
	case params.ReasonDateInPast:
		return "That date has already passed. " + ask
	case params.ReasonOutOfRange:
		switch verr.Field {
		case params.FieldPassengerCount:
			return fmt.Sprintf("I can search for 1 to %d passengers. %s", maxOr(cfg.MaxPassengers, 9), ask)
		case params.FieldGuestCount:
			return fmt.Sprintf("I can search for 1 to %d guests. %s", maxOr(cfg.MaxGuests, 10), ask)
		}
	}
	return "That doesn't look right. " + ask
}

func maxOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func dayText(d *civil.Date) string {
	if d == nil {
		return "the earlier date"
	}
	return d.In(time.UTC).Format("Mon 2 Jan 2006")
}

// describe renders what has been collected for intent, e.g.
// "a flight from Boston to Chicago on Mon 19 Oct 2026".
func describe(intent params.Intent, set params.ParameterSet) string {
	var b strings.Builder
	switch intent {
	case params.IntentFlightSearch:
		p := set.Flight
		b.WriteString("a flight")
		if p.Origin != "" {
			b.WriteString(" from " + p.Origin)
		}
		if p.Destination != "" {
			b.WriteString(" to " + p.Destination)
		}
		if p.DepartureDate != nil {
			b.WriteString(" on " + dayText(p.DepartureDate))
		}
		if p.ReturnDate != nil {
			b.WriteString(", back " + dayText(p.ReturnDate))
		}
		if n := p.Passengers(); n > 1 {
			fmt.Fprintf(&b, ", %d passengers", n)
		}
		if p.CabinClass != "" && p.CabinClass != params.CabinEconomy {
			fmt.Fprintf(&b, ", %s class", p.CabinClass)
		}
	case params.IntentHotelSearch:
		p := set.Hotel
		b.WriteString("a hotel")
		if p.Location != "" {
			b.WriteString(" in " + p.Location)
		}
		if p.CheckIn != nil {
			b.WriteString(" from " + dayText(p.CheckIn))
		}
		if p.CheckOut != nil {
			b.WriteString(" to " + dayText(p.CheckOut))
		}
		if n := p.Guests(); n > 1 {
			fmt.Fprintf(&b, " for %d guests", n)
		}
		if len(p.Preferences) > 0 {
			b.WriteString(" with " + strings.Join(p.Preferences, ", "))
		}
	case params.IntentDestinationInfo:
		p := set.Info
		b.WriteString("info")
		if p.Destination != "" {
			b.WriteString(" about " + p.Destination)
		}
		if p.Topic != "" && p.Topic != params.TopicGeneral {
			fmt.Fprintf(&b, " (%s)", p.Topic)
		}
	}
	return b.String()
}

func confirmQuestion(intent params.Intent, set params.ParameterSet) string {
	return fmt.Sprintf("Just to check, you're looking for %s. Is that right?", describe(intent, set))
}

var (
	affirmativeRe = regexp.MustCompile(`(?i)^(yes|yeah|yep|yup|sure|correct|right|that's right|exactly|go ahead|ok|okay|confirm|sounds good|please do|do it)\b`)
	negativeRe    = regexp.MustCompile(`(?i)^(no|nope|nah|wrong|not quite|incorrect)\b`)
)

func affirmative(s string) bool { return affirmativeRe.MatchString(strings.TrimSpace(s)) }
func negative(s string) bool    { return negativeRe.MatchString(strings.TrimSpace(s)) }
