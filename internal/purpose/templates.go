// Package purpose provides business-purpose template lookup for trips.
// Purposes come from a fixed template table keyed by detected trip
// patterns; there is no free-form generation.
package purpose

import (
	"strings"

	"github.com/wayfare-dev/wayfare/internal/model"
)

// Template is a business-purpose template selected by trip pattern.
type Template struct {
	Kind string
	Text string
}

// Templates in priority order: the first whose pattern matches the trip
// wins. {city} is substituted with the trip's dominant location.
var templates = []Template{
	{Kind: "conference", Text: "Conference attendance and professional development in {city}"},
	{Kind: "training", Text: "Professional training and skill development in {city}"},
	{Kind: "client_entertainment", Text: "Client relationship building and entertainment in {city}"},
	{Kind: "multi_city", Text: "Multi-city business development tour: {cities}"},
	{Kind: "single_city", Text: "Business meetings and client engagement in {city}"},
}

// defaultPurpose is used when a trip has no resolvable location at all.
const defaultPurpose = "Business travel for client meetings and professional development"

var conferenceKeywords = []string{
	"convention", "conference", "summit", "symposium", "expo",
	"registration", "attendee", "badge",
}

var trainingKeywords = []string{
	"training", "course", "workshop", "certification", "academy",
}

// Suggest returns the template-derived business purpose for a categorized
// trip.
func Suggest(trip *model.Trip) string {
	for _, tpl := range templates {
		if !matches(tpl.Kind, trip) {
			continue
		}
		return expand(tpl.Text, trip)
	}
	return defaultPurpose
}

func matches(kind string, trip *model.Trip) bool {
	switch kind {
	case "conference":
		return hasConferencePattern(trip)
	case "training":
		return hasKeyword(trip, trainingKeywords)
	case "client_entertainment":
		return hasEntertainmentExpenses(trip)
	case "multi_city":
		return len(cities(trip)) > 1
	case "single_city":
		return len(cities(trip)) == 1
	}
	return false
}

// hasConferencePattern detects conference trips either by explicit
// keywords or by the lodging-plus-meals shape of a multi-day event.
func hasConferencePattern(trip *model.Trip) bool {
	if hasKeyword(trip, conferenceKeywords) {
		return true
	}

	hotels, meals := 0, 0
	for _, txn := range trip.Transactions {
		switch txn.Category {
		case "HOTEL":
			hotels++
		case "MEALS":
			meals++
		}
	}
	return hotels >= 2 && meals >= 4
}

func hasEntertainmentExpenses(trip *model.Trip) bool {
	for _, txn := range trip.Transactions {
		if txn.Category == "ENTERTAINMENT" {
			return true
		}
		// An expensive dinner usually means client entertainment.
		if txn.Category == "MEALS" && txn.Amount.InexactFloat64() > 150 {
			return true
		}
	}
	return false
}

func hasKeyword(trip *model.Trip, keywords []string) bool {
	for _, txn := range trip.Transactions {
		desc := strings.ToLower(txn.Description)
		for _, keyword := range keywords {
			if strings.Contains(desc, keyword) {
				return true
			}
		}
	}
	return false
}

// cities returns the distinct normalized locations in first-seen order.
func cities(trip *model.Trip) []string {
	seen := make(map[string]bool)
	var out []string
	for _, txn := range trip.Transactions {
		loc := txn.NormalizedLocation
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, loc)
	}
	return out
}

func expand(text string, trip *model.Trip) string {
	city := trip.DominantLocation
	if city == "" {
		city = "various locations"
	}

	cityList := cities(trip)
	if len(cityList) > 3 {
		cityList = cityList[:3]
	}
	citiesJoined := strings.Join(cityList, ", ")
	if citiesJoined == "" {
		citiesJoined = "various locations"
	}

	text = strings.ReplaceAll(text, "{city}", city)
	text = strings.ReplaceAll(text, "{cities}", citiesJoined)
	return text
}
