// README: Deterministic pattern pass over one utterance.
package extract

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"cloud.google.com/go/civil"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"wayfarer/internal/modules/params"
)

const numberWordPattern = `one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve`

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

func parseCount(s string) int {
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

var intentKeywords = map[params.Intent]*regexp.Regexp{
	params.IntentFlightSearch:    regexp.MustCompile(`\b(flights?|fly|flying|airfare|plane|airlines?|one[- ]way|round[- ]trip|nonstop|layovers?)\b`),
	params.IntentHotelSearch:     regexp.MustCompile(`\b(hotels?|motels?|hostels?|stay|staying|accommodations?|lodging|rooms?|resorts?|airbnb|bnb|check[- ]?in|check[- ]?out)\b`),
	params.IntentDestinationInfo: regexp.MustCompile(`\b(weather|climate|forecast|visas?|passports?|attractions?|things to do|sights|sightseeing|tell me about|information|info|getting around|public transport|transportation|what is it like|what's it like|is it safe)\b`),
}

var (
	countRe     = regexp.MustCompile(`\b(\d+|` + numberWordPattern + `)\s+(?:adult\s+)?(passengers?|people|persons|adults|travell?ers|guests|tickets|seats|of us)\b`)
	partyRe     = regexp.MustCompile(`\b(?:party of|we are|we're|group of)\s+(\d+|` + numberWordPattern + `)\b`)
	soloRe      = regexp.MustCompile(`\b(solo|just me|only me|by myself|alone|one person)\b`)
	coupleRe    = regexp.MustCompile(`\b(couple|two of us|me and my (?:wife|husband|partner|girlfriend|boyfriend))\b`)
	nightsRe    = regexp.MustCompile(`\b(?:for\s+)?(\d+|a|` + numberWordPattern + `)\s+nights?\b`)
	bareCountRe = regexp.MustCompile(`^\s*(\d+|` + numberWordPattern + `)\s*(?:passengers?|people|persons|adults|guests|travell?ers)?\s*(?:please)?\s*[.!]?\s*$`)
	iataRe      = regexp.MustCompile(`\b[A-Z]{3}\b`)
)

var cabinPatterns = []struct {
	re    *regexp.Regexp
	cabin params.CabinClass
}{
	{regexp.MustCompile(`\bfirst[\s-]class\b`), params.CabinFirst},
	{regexp.MustCompile(`\bbusiness[\s-]class\b|\b(?:fly|flying|in)\s+business\b`), params.CabinBusiness},
	{regexp.MustCompile(`\b(?:economy|coach)\b`), params.CabinEconomy},
}

var topicPatterns = []struct {
	re    *regexp.Regexp
	topic params.Topic
}{
	{regexp.MustCompile(`\b(weather|climate|temperature|forecast|rain)\b`), params.TopicWeather},
	{regexp.MustCompile(`\b(attractions?|things to do|sights|sightseeing|what to see|landmarks|museums)\b`), params.TopicAttractions},
	{regexp.MustCompile(`\b(visas?|passports?|documents|entry requirements)\b`), params.TopicDocuments},
	{regexp.MustCompile(`\b(getting around|transport(?:ation)?|metro|subway|public transit|trains?|buses|taxis?)\b`), params.TopicTransport},
}

var preferencePatterns = []struct {
	re  *regexp.Regexp
	tag string
}{
	{regexp.MustCompile(`\b(?:pool|swimming)\b`), "pool"},
	{regexp.MustCompile(`\bwi-?fi\b`), "wifi"},
	{regexp.MustCompile(`\bparking\b`), "parking"},
	{regexp.MustCompile(`\bbreakfast\b`), "breakfast"},
	{regexp.MustCompile(`\b(?:gym|fitness)\b`), "gym"},
	{regexp.MustCompile(`\bspa\b`), "spa"},
	{regexp.MustCompile(`\bpets?(?:[\s-]friendly)?\b|\bdogs? allowed\b`), "pet-friendly"},
	{regexp.MustCompile(`\bbeach(?:front)?\b`), "beach"},
	{regexp.MustCompile(`\bairport shuttle\b`), "airport shuttle"},
	{regexp.MustCompile(`\bkitchen(?:ette)?\b`), "kitchen"},
	{regexp.MustCompile(`\bquiet\b`), "quiet"},
	{regexp.MustCompile(`\b(?:cheap|budget|affordable|inexpensive)\b`), "budget"},
	{regexp.MustCompile(`\b(?:luxury|upscale|five[\s-]star|5[\s-]star)\b`), "luxury"},
	{regexp.MustCompile(`\bdowntown|city cent(?:er|re)\b`), "central"},
}

// Words that end a place phrase or can never start one.
var placeStopwords = map[string]bool{
	"on": true, "next": true, "this": true, "for": true, "with": true, "and": true, "in": true,
	"from": true, "to": true, "at": true, "near": true, "by": true, "tomorrow": true, "today": true,
	"tonight": true, "please": true, "departing": true, "leaving": true, "returning": true,
	"return": true, "back": true, "until": true, "till": true, "a": true, "an": true,
	"flight": true, "flights": true, "hotel": true, "hotels": true, "room": true, "rooms": true,
	"me": true, "us": true, "i": true, "we": true, "around": true, "during": true, "between": true,
	"who": true, "which": true, "that": true, "where": true, "economy": true, "business": true,
	"first": true, "class": true, "how": true, "what": true, "is": true, "are": true, "it": true,
	"my": true, "our": true, "go": true, "fly": true, "travel": true, "book": true, "find": true,
	"see": true, "visit": true, "know": true, "get": true, "be": true, "have": true, "stay": true,
	"check": true, "do": true, "under": true, "over": true, "cheap": true, "early": true,
	"late": true, "morning": true, "evening": true, "afternoon": true, "week": true, "weekend": true,
	"day": true, "days": true, "night": true, "nights": true, "month": true, "passengers": true,
	"people": true, "guests": true, "adults": true, "there": true, "here": true, "somewhere": true,
	"or": true, "but": true, "then": true, "also": true, "the": true, "weather": true,
	"like": true, "about": true, "some": true, "any": true, "information": true, "info": true,
	"yes": true, "no": true, "thanks": true, "thank": true, "ok": true, "okay": true,
}

// Place-introducing words and the role of the phrase that follows.
type placeRole int

const (
	placeFrom placeRole = iota + 1
	placeTo
	placeIn
	placeAbout
)

var placeIntroducers = map[string]placeRole{
	"from": placeFrom, "to": placeTo, "into": placeTo, "in": placeIn, "near": placeIn,
	"at": placeIn, "about": placeAbout, "visiting": placeAbout, "of": placeAbout,
}

// entities is everything the pattern pass recognised, before it is mapped
// onto the parameters of a particular intent.
type entities struct {
	intentHits map[params.Intent]int

	from, to, in, about string
	codes               []string

	start, end *civil.Date
	dates      []dateMatch
	nights     int

	count  *int
	cabin  params.CabinClass
	topic  params.Topic
	prefs  []string
	hasAny bool
}

func scan(text string, ref civil.Date) entities {
	lower := asciiLower(text)
	e := entities{intentHits: map[params.Intent]int{}}

	for intent, re := range intentKeywords {
		if n := len(re.FindAllStringIndex(lower, -1)); n > 0 {
			e.intentHits[intent] = n
		}
	}

	e.dates = findDates(text, ref)
	for i := range e.dates {
		d := e.dates[i].date
		if e.dates[i].role == roleEnd && e.end == nil {
			e.end = &d
		} else if e.start == nil && e.dates[i].role == roleAuto {
			e.start = &d
		} else if e.end == nil {
			e.end = &d
		}
	}
	if m := nightsRe.FindStringSubmatch(lower); m != nil {
		e.nights = parseCount(m[1])
	}

	scanPlaces(text, &e)

	switch {
	case countRe.MatchString(lower):
		e.count = params.Count(parseCount(countRe.FindStringSubmatch(lower)[1]))
	case partyRe.MatchString(lower):
		e.count = params.Count(parseCount(partyRe.FindStringSubmatch(lower)[1]))
	case coupleRe.MatchString(lower):
		e.count = params.Count(2)
	case soloRe.MatchString(lower):
		e.count = params.Count(1)
	}

	for _, c := range cabinPatterns {
		if c.re.MatchString(lower) {
			e.cabin = c.cabin
			break
		}
	}
	for _, t := range topicPatterns {
		if t.re.MatchString(lower) {
			e.topic = t.topic
			break
		}
	}
	for _, p := range preferencePatterns {
		if p.re.MatchString(lower) {
			e.prefs = append(e.prefs, p.tag)
		}
	}

	e.hasAny = e.from != "" || e.to != "" || e.in != "" || e.about != "" || len(e.codes) > 0 ||
		e.start != nil || e.end != nil || e.nights > 0 || e.count != nil || e.cabin != "" ||
		e.topic != "" || len(e.prefs) > 0
	return e
}

type token struct {
	text     string
	boundary bool
}

func tokenize(text string) []token {
	fields := strings.Fields(text)
	out := make([]token, 0, len(fields))
	for _, f := range fields {
		trimmed := strings.TrimRightFunc(f, func(r rune) bool { return strings.ContainsRune(",.?!;:)", r) })
		trimmed = strings.TrimLeft(trimmed, "(\"'")
		trimmed = strings.TrimRight(trimmed, "\"'")
		if trimmed == "" {
			if len(out) > 0 {
				out[len(out)-1].boundary = true
			}
			continue
		}
		out = append(out, token{text: trimmed, boundary: strings.ContainsAny(f[len(f)-1:], ",.?!;:)")})
	}
	return out
}

// scanPlaces collects up to four words after each place-introducing word.
// An introducer followed only by stopwords yields nothing and scanning
// resumes at the next token, so "want to go to Paris" finds Paris.
func scanPlaces(text string, e *entities) {
	toks := tokenize(text)
	used := make([]bool, len(toks))
	for i := 0; i < len(toks); i++ {
		role, ok := placeIntroducers[asciiLower(toks[i].text)]
		if !ok || toks[i].boundary {
			continue
		}
		j := i + 1
		if j < len(toks) && asciiLower(toks[j].text) == "the" && !toks[j].boundary {
			j++
		}
		var words []string
		for ; j < len(toks) && len(words) < 4; j++ {
			w := toks[j].text
			if !placeWord(w) {
				break
			}
			words = append(words, w)
			used[j] = true
			if toks[j].boundary {
				j++
				break
			}
		}
		if len(words) == 0 {
			continue
		}
		place := titlePlace(strings.Join(words, " "))
		switch role {
		case placeFrom:
			setOnce(&e.from, place)
		case placeTo:
			setOnce(&e.to, place)
		case placeIn:
			setOnce(&e.in, place)
		case placeAbout:
			setOnce(&e.about, place)
		}
		i = j - 1
	}
	for i, t := range toks {
		if !used[i] && iataRe.MatchString(t.text) && len(t.text) == 3 && !commonCaps[t.text] {
			e.codes = append(e.codes, t.text)
		}
	}
}

var commonCaps = map[string]bool{"THE": true, "AND": true, "FOR": true, "YES": true, "USA": true, "NOT": true}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func placeWord(w string) bool {
	l := asciiLower(w)
	if placeStopwords[l] {
		return false
	}
	if _, ok := monthByPrefix[l]; ok {
		return false
	}
	if _, ok := weekdays[l]; ok {
		return false
	}
	if len(l) >= 3 {
		if _, ok := monthByPrefix[l[:3]]; ok && monthName(l) {
			return false
		}
	}
	for _, r := range w {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return unicode.IsLetter([]rune(w)[0])
}

func monthName(l string) bool {
	for _, m := range []string{"january", "february", "march", "april", "june", "july", "august", "september", "sept", "october", "november", "december"} {
		if l == m {
			return true
		}
	}
	return false
}

// titlePlace title-cases a phrase typed in lower case and leaves any other
// capitalisation (including airport codes) alone.
func titlePlace(s string) string {
	if s != strings.ToLower(s) {
		return s
	}
	return cases.Title(language.English).String(s)
}

// bareReply interprets an utterance that only answers the pending question,
// e.g. "Chicago" or "3".
func bareReply(text string, field params.Field, e entities) (place string, count *int) {
	switch field.Kind() {
	case params.KindCount:
		if m := bareCountRe.FindStringSubmatch(asciiLower(text)); m != nil {
			return "", params.Count(parseCount(m[1]))
		}
	case params.KindPlace:
		if e.from != "" || e.to != "" || e.in != "" || e.about != "" || len(e.intentHits) > 0 {
			return "", nil
		}
		if len(e.codes) == 1 {
			return e.codes[0], nil
		}
		toks := tokenize(text)
		if len(toks) == 0 || len(toks) > 4 {
			return "", nil
		}
		words := make([]string, 0, len(toks))
		for _, t := range toks {
			if !placeWord(t.text) {
				if asciiLower(t.text) == "please" {
					continue
				}
				return "", nil
			}
			words = append(words, t.text)
		}
		if len(words) == 0 {
			return "", nil
		}
		return titlePlace(strings.Join(words, " ")), nil
	}
	return "", nil
}

// detectIntent picks the intent with the most keyword hits. Ties fall back to
// the prior intent when it is among them, otherwise the result is unclear.
// Without any keyword the prior intent carries over; with no prior intent a
// from/to pair still reads as a flight search.
func detectIntent(e entities, prior params.Intent) (params.Intent, bool) {
	best, bestN, tie := params.IntentUnclear, 0, false
	for _, intent := range []params.Intent{params.IntentFlightSearch, params.IntentHotelSearch, params.IntentDestinationInfo} {
		n := e.intentHits[intent]
		switch {
		case n > bestN:
			best, bestN, tie = intent, n, false
		case n == bestN && n > 0:
			tie = true
		}
	}
	if bestN > 0 && !tie {
		return best, true
	}
	if tie && prior.Known() && e.intentHits[prior] == bestN {
		return prior, true
	}
	if tie {
		return params.IntentUnclear, false
	}
	if prior.Known() {
		return prior, true
	}
	if e.to != "" && (e.from != "" || len(e.codes) > 0) || len(e.codes) >= 2 {
		return params.IntentFlightSearch, true
	}
	return params.IntentUnclear, false
}

// apply maps scanned entities onto the section for intent. Relative stay
// lengths ("for 3 nights") are anchored on the check-in from this turn or,
// failing that, from prior.
func apply(intent params.Intent, e entities, prior params.ParameterSet) params.ParameterSet {
	var out params.ParameterSet
	switch intent {
	case params.IntentFlightSearch:
		p := &out.Flight
		p.Origin, p.Destination = e.from, e.to
		codes := slices.Clone(e.codes)
		if p.Origin == "" && len(codes) > 0 {
			p.Origin, codes = codes[0], codes[1:]
		}
		if p.Destination == "" && len(codes) > 0 {
			p.Destination = codes[0]
		}
		if p.Destination == "" && e.in != "" && p.Origin != "" {
			p.Destination = e.in
		}
		p.DepartureDate, p.ReturnDate = e.start, e.end
		p.PassengerCount = e.count
		p.CabinClass = e.cabin
	case params.IntentHotelSearch:
		p := &out.Hotel
		p.Location = firstNonEmpty(e.in, e.to, e.about)
		if p.Location == "" && len(e.codes) > 0 {
			p.Location = e.codes[0]
		}
		p.CheckIn, p.CheckOut = e.start, e.end
		if p.CheckOut == nil && e.nights > 0 {
			anchor := p.CheckIn
			if anchor == nil {
				anchor = prior.Hotel.CheckIn
			}
			if anchor != nil {
				d := anchor.AddDays(e.nights)
				p.CheckOut = &d
			}
		}
		p.GuestCount = e.count
		p.Preferences = e.prefs
	case params.IntentDestinationInfo:
		p := &out.Info
		p.Destination = firstNonEmpty(e.about, e.to, e.in)
		if p.Destination == "" && len(e.codes) > 0 {
			p.Destination = e.codes[0]
		}
		p.Topic = e.topic
	}
	return out
}

// applyPending assigns a value that only makes sense as the answer to the
// pending question. A single date answers a pending date question even when
// it would otherwise read as a start date.
func applyPending(intent params.Intent, field params.Field, text string, e entities, turn *params.ParameterSet) {
	if field == "" || turn.Has(intent, field) && field.Kind() != params.KindDate {
		return
	}
	switch field.Kind() {
	case params.KindDate:
		if len(e.dates) != 1 {
			return
		}
		// "returning on June 20" stays a return date even when the
		// question was about departure.
		if e.dates[0].role == roleEnd && !endDateField(field) {
			return
		}
		d := e.dates[0].date
		for _, f := range params.FieldsFor(intent) {
			if f != field && f.Kind() == params.KindDate && dateOf(*turn, intent, f) == d {
				turn.Clear(intent, f)
			}
		}
		turn.SetDate(intent, field, d)
	case params.KindPlace:
		if place, _ := bareReply(text, field, e); place != "" {
			turn.SetText(intent, field, place)
		}
	case params.KindCount:
		if _, n := bareReply(text, field, e); n != nil {
			turn.SetCount(intent, field, *n)
		}
	}
}

func endDateField(f params.Field) bool {
	return f == params.FieldReturnDate || f == params.FieldCheckOut
}

func dateOf(s params.ParameterSet, intent params.Intent, f params.Field) civil.Date {
	var d *civil.Date
	switch f {
	case params.FieldDepartureDate:
		d = s.Flight.DepartureDate
	case params.FieldReturnDate:
		d = s.Flight.ReturnDate
	case params.FieldCheckIn:
		d = s.Hotel.CheckIn
	case params.FieldCheckOut:
		d = s.Hotel.CheckOut
	}
	if d == nil || !s.Has(intent, f) {
		return civil.Date{}
	}
	return *d
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
