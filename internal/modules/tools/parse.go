// README: Fare, duration and stop hints scraped from search snippets.
package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"wayfarer/internal/types"
)

var (
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)\bUSD\s*(\d[\d,]*(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(?:USD|dollars)\b`),
	}
	durationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d{1,2})\s*h(?:rs?|ours?)?\s*(?:(\d{1,2})\s*m(?:in(?:utes?)?)?)?\b`),
		regexp.MustCompile(`(?i)\bduration:?\s*(\d{1,2}):(\d{2})\b`),
	}
	stopsRe   = regexp.MustCompile(`(?i)\b(\d)\s*stops?\b`)
	nonstopRe = regexp.MustCompile(`(?i)\b(?:non-?stop|direct)\b`)
	airlines  = airlinePatterns(
		"American Airlines", "Delta", "United Airlines", "Southwest", "JetBlue", "Alaska Airlines", "Air Canada",
		"British Airways", "Lufthansa", "Air France", "KLM", "Emirates", "Qatar Airways", "Etihad",
		"Turkish Airlines", "Singapore Airlines", "Cathay Pacific", "Japan Airlines", "Ryanair",
		"easyJet", "Spirit Airlines", "Frontier Airlines", "Saudia", "Flynas", "Qantas",
	)
)

type airline struct {
	name string
	re   *regexp.Regexp
}

func airlinePatterns(names ...string) []airline {
	out := make([]airline, len(names))
	for i, n := range names {
		out[i] = airline{name: n, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(n) + `\b`)}
	}
	return out
}

// findPrice returns the first dollar amount in the given texts.
func findPrice(texts ...string) (types.Money, bool) {
	for _, t := range texts {
		if t == "" {
			continue
		}
		if m, err := types.ParseMoney(strings.TrimPrefix(strings.TrimSpace(t), "$"), "USD"); err == nil && m.Amount > 0 {
			return m, true
		}
		for _, re := range pricePatterns {
			if sub := re.FindStringSubmatch(t); sub != nil {
				if m, err := types.ParseMoney(sub[1], "USD"); err == nil && m.Amount > 0 {
					return m, true
				}
			}
		}
	}
	return types.Money{}, false
}

func findDuration(text string) (time.Duration, bool) {
	for _, re := range durationPatterns {
		sub := re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		h, _ := strconv.Atoi(sub[1])
		m := 0
		if sub[2] != "" {
			m, _ = strconv.Atoi(sub[2])
		}
		if h == 0 && m == 0 {
			continue
		}
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, true
	}
	return 0, false
}

// findStops returns -1 when the snippet says nothing about stops.
func findStops(text string) int {
	if nonstopRe.MatchString(text) {
		return 0
	}
	if sub := stopsRe.FindStringSubmatch(text); sub != nil {
		n, _ := strconv.Atoi(sub[1])
		return n
	}
	return -1
}

func findAirlines(texts ...string) []string {
	joined := strings.Join(texts, " ")
	var out []string
	for _, a := range airlines {
		if a.re.MatchString(joined) {
			out = append(out, a.name)
		}
	}
	return out
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
}
