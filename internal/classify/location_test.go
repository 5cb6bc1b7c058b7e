package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationClassifierHomeRegion(t *testing.T) {
	c := NewLocationClassifier("OR")

	tests := []struct {
		name        string
		description string
		rawLocation string
	}{
		{"state code", "COFFEE SHOP", "PORTLAND OR"},
		{"city indicator without state", "POWELLS BOOKS PORTLAND", ""},
		{"suburb indicator", "NEW SEASONS BEAVERTON", ""},
		{"state name", "OREGON ZOO ADMISSION", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := c.Classify(tt.description, tt.rawLocation)
			assert.True(t, info.Resolved)
			assert.False(t, info.OutOfRegion)
		})
	}
}

func TestLocationClassifierOutOfRegion(t *testing.T) {
	c := NewLocationClassifier("OR")

	tests := []struct {
		name        string
		description string
		rawLocation string
		wantState   string
	}{
		{"city and state in location", "FLIGHT 447", "SEATTLE WA", "WA"},
		{"state in description", "MARRIOTT CHICAGO IL", "", "IL"},
		{"bare state code", "TOLL PLAZA 9", "TX", "TX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := c.Classify(tt.description, tt.rawLocation)
			assert.True(t, info.Resolved)
			assert.True(t, info.OutOfRegion)
			assert.Contains(t, info.Normalized, tt.wantState)
		})
	}
}

func TestLocationClassifierUnresolved(t *testing.T) {
	c := NewLocationClassifier("OR")

	tests := []struct {
		name        string
		description string
	}{
		{"online merchant", "AMAZON.COM*RT4Y28"},
		{"no location at all", "MONTHLY SUBSCRIPTION"},
		{"two letter word that is not a state", "GO STORE 12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := c.Classify(tt.description, "")
			assert.False(t, info.Resolved, "unresolvable locations must not be guessed")
			assert.False(t, info.OutOfRegion, "unresolved is not out-of-region")
		})
	}
}

func TestLocationNormalizedIncludesCity(t *testing.T) {
	c := NewLocationClassifier("OR")

	info := c.Classify("FLIGHT 447", "SEATTLE WA")
	assert.Equal(t, "SEATTLE WA", info.Normalized)

	// The last valid city/state pair wins when several appear.
	info = c.Classify("447", "DENVER CO AUSTIN TX")
	assert.Equal(t, "TX", info.Normalized[len(info.Normalized)-2:])
}
