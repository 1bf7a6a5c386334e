package domain

import (
	"fmt"
	"strings"
)

// Level is a tier of elected representation.
type Level string

const (
	LevelFederal   Level = "federal"
	LevelState     Level = "state"
	LevelCounty    Level = "county"
	LevelMunicipal Level = "municipal"
)

// levelOrder is the canonical ordering used for output and iteration.
var levelOrder = map[Level]int{
	LevelFederal:   1,
	LevelState:     2,
	LevelCounty:    3,
	LevelMunicipal: 4,
}

// AllLevels returns every level in canonical order.
func AllLevels() []Level {
	return []Level{LevelFederal, LevelState, LevelCounty, LevelMunicipal}
}

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelOrder[l]; !ok {
		return "", fmt.Errorf("unknown level: %q", s)
	}
	return l, nil
}

func (l Level) String() string {
	return string(l)
}

// Before reports whether l sorts ahead of other in canonical order.
func (l Level) Before(other Level) bool {
	return levelOrder[l] < levelOrder[other]
}

// Chamber distinguishes seats that share a level, e.g. the two houses of a
// legislature or a mayor and a city council.
type Chamber string

const (
	ChamberHouse      Chamber = "house"
	ChamberSenate     Chamber = "senate"
	ChamberUpper      Chamber = "upper"
	ChamberLower      Chamber = "lower"
	ChamberSupervisor Chamber = "supervisor"
	ChamberExecutive  Chamber = "executive"
	ChamberCouncil    Chamber = "council"
)
