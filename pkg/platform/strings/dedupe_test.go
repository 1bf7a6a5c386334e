package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil stays nil", input: nil, expected: nil},
		{name: "empty stays empty", input: []string{}, expected: []string{}},
		{name: "trims", input: []string{"  tbd ", "tba"}, expected: []string{"tbd", "tba"}},
		{name: "first occurrence wins", input: []string{"demo", "tba", "demo"}, expected: []string{"demo", "tba"}},
		{name: "drops blanks", input: []string{"", "  ", "fake"}, expected: []string{"fake"}},
		{name: "keeps case", input: []string{"TBD", "tbd"}, expected: []string{"TBD", "tbd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	got := DedupeAndTrimLower([]string{" Example.COM", "example.com", "Test", "", "mailinator.com"})
	assert.Equal(t, []string{"example.com", "test", "mailinator.com"}, got)
}
