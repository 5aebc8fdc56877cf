package store

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFrequency parses a heartbeat frequency string of the form "Ns",
// "Nm", "Nh", or a bare integer (seconds), returning whole seconds
// (spec.md §4.R control surface: frequency strings).
func ParseFrequency(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty frequency string")
	}
	unit := s[len(s)-1]
	var numPart string
	var multiplier int
	switch unit {
	case 's':
		numPart, multiplier = s[:len(s)-1], 1
	case 'm':
		numPart, multiplier = s[:len(s)-1], 60
	case 'h':
		numPart, multiplier = s[:len(s)-1], 3600
	default:
		numPart, multiplier = s, 1
	}
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid frequency %q: must be positive", s)
	}
	return n * multiplier, nil
}
