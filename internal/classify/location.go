// Package classify implements the location and category classifiers that
// feed the trip-grouping pipeline.
package classify

import (
	"regexp"
	"strings"

	"github.com/wayfare-dev/wayfare/internal/model"
)

// stateCodes is the set of recognized US state and territory codes.
var stateCodes = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true,
}

// regionIndicators maps a home-region code to the substrings that mark a
// transaction as in-region even when no state code is present.
var regionIndicators = map[string][]string{
	"OR": {
		"OREGON", "PORTLAND", "SALEM", "EUGENE", "BEND", "CORVALLIS",
		"MEDFORD", "SPRINGFIELD", "GRESHAM", "HILLSBORO", "BEAVERTON",
		"TIGARD", "LAKE OSWEGO", "MILWAUKIE", "TUALATIN",
	},
	"WA": {"WASHINGTON", "SEATTLE", "TACOMA", "SPOKANE", "BELLEVUE", "OLYMPIA"},
	"CA": {"CALIFORNIA", "SAN FRANCISCO", "LOS ANGELES", "SAN DIEGO", "SACRAMENTO", "OAKLAND", "SAN JOSE"},
	"NY": {"NEW YORK", "BROOKLYN", "MANHATTAN", "QUEENS", "ALBANY", "BUFFALO"},
	"TX": {"TEXAS", "AUSTIN", "DALLAS", "HOUSTON", "SAN ANTONIO", "FORT WORTH"},
	"IL": {"ILLINOIS", "CHICAGO", "SPRINGFIELD IL", "NAPERVILLE"},
}

// cityStatePattern captures a trailing "CITY ST" pair from an uppercased
// description or location string. Candidate state codes are filtered
// against stateCodes since merchant names are full of stray two-letter
// words.
var (
	cityStatePattern = regexp.MustCompile(`([A-Z][A-Z.'\- ]*[A-Z])[ ,]+([A-Z]{2})\b`)
	stateCodePattern = regexp.MustCompile(`\b([A-Z]{2})\b`)
)

// LocationClassifier determines whether a transaction occurred outside the
// configured home region.
type LocationClassifier struct {
	homeRegion string
	indicators []string
}

// NewLocationClassifier creates a classifier for the given home-region
// code (e.g. "OR"). The bare region code is matched against extracted
// state codes only, never as a substring; short codes appear inside too
// many merchant names for that to be safe.
func NewLocationClassifier(homeRegion string) *LocationClassifier {
	region := strings.ToUpper(strings.TrimSpace(homeRegion))
	return &LocationClassifier{
		homeRegion: region,
		indicators: regionIndicators[region],
	}
}

// Classify resolves the transaction's location against the home region.
// Unresolvable locations report OutOfRegion=false with Resolved=false so
// missing location data degrades confidence downstream instead of failing
// the pipeline.
func (c *LocationClassifier) Classify(description, rawLocation string) model.LocationInfo {
	text := strings.ToUpper(description + " " + rawLocation)

	city, state := extractCityState(text)

	if state == c.homeRegion {
		normalized := c.homeRegion
		if city != "" {
			normalized = city + " " + state
		}
		return model.LocationInfo{
			Normalized:  normalized,
			OutOfRegion: false,
			Resolved:    true,
		}
	}

	for _, indicator := range c.indicators {
		if strings.Contains(text, indicator) {
			return model.LocationInfo{
				Normalized:  c.homeRegion,
				OutOfRegion: false,
				Resolved:    true,
			}
		}
	}

	if state == "" {
		return model.LocationInfo{
			OutOfRegion: false,
			Resolved:    false,
		}
	}

	normalized := state
	if city != "" {
		normalized = city + " " + state
	}
	return model.LocationInfo{
		Normalized:  normalized,
		OutOfRegion: state != c.homeRegion,
		Resolved:    true,
	}
}

// extractCityState returns the last "CITY ST" pair in the text, or just
// the last recognized state code when no city precedes it.
func extractCityState(text string) (city, state string) {
	for _, match := range cityStatePattern.FindAllStringSubmatch(text, -1) {
		if stateCodes[match[2]] {
			city = strings.TrimSpace(match[1])
			state = match[2]
		}
	}
	if state != "" {
		return city, state
	}

	for _, match := range stateCodePattern.FindAllStringSubmatch(text, -1) {
		if stateCodes[match[1]] {
			state = match[1]
		}
	}
	return "", state
}
