// README: Distance-based fare estimate used when search results carry no fares.
package tools

import (
	"math"
	"time"

	"cloud.google.com/go/civil"

	"wayfarer/internal/modules/params"
	"wayfarer/internal/types"
)

// FareRate is the per-passenger price model for one cabin, in cents.
type FareRate struct {
	BaseFare int64
	PerKm    int64
}

var fareRates = map[params.CabinClass]FareRate{
	params.CabinEconomy:  {BaseFare: 4900, PerKm: 9},
	params.CabinBusiness: {BaseFare: 19900, PerKm: 32},
	params.CabinFirst:    {BaseFare: 39900, PerKm: 55},
}

// FareEstimate is a rough fare with its components.
type FareEstimate struct {
	Total     types.Money      `json:"total"`
	Breakdown map[string]int64 `json:"breakdown"`
}

// EstimateFare prices a one-way trip of distanceKm for the given cabin and
// passengers. Peak season (mid June to August, 20 Dec to 5 Jan) adds 20%;
// Friday and Sunday departures add 10%.
func EstimateFare(distanceKm float64, cabin params.CabinClass, departure civil.Date, passengers int) FareEstimate {
	rate, ok := fareRates[cabin]
	if !ok {
		rate = fareRates[params.CabinEconomy]
	}
	if passengers < 1 {
		passengers = 1
	}
	b := map[string]int64{
		"base":     rate.BaseFare,
		"distance": int64(math.Ceil(distanceKm)) * rate.PerKm,
	}
	sub := b["base"] + b["distance"]
	if peakSeason(departure) {
		b["peak_season"] = sub / 5
	}
	if wd := departure.In(time.UTC).Weekday(); wd == time.Friday || wd == time.Sunday {
		b["weekend"] = sub / 10
	}
	var per int64
	for _, v := range b {
		per += v
	}
	per = (per + 50) / 100 * 100
	return FareEstimate{
		Total:     types.Money{Amount: per, Currency: "USD"}.Times(passengers),
		Breakdown: b,
	}
}

func peakSeason(d civil.Date) bool {
	switch {
	case d.Month == time.June && d.Day >= 15, d.Month == time.July, d.Month == time.August:
		return true
	case d.Month == time.December && d.Day >= 20, d.Month == time.January && d.Day <= 5:
		return true
	}
	return false
}
