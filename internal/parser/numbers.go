package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	amountPattern  = regexp.MustCompile(`[\d,]+\.?\d*`)
	integerPattern = regexp.MustCompile(`(\d+)`)
	decimalPattern = regexp.MustCompile(`(\d+\.?\d*)`)
)

// ParseAmount parses a price-like string, stripping thousands separators.
func ParseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// Amounts returns every numeric substring of text, in order of appearance.
func Amounts(text string) []float64 {
	var out []float64
	for _, m := range amountPattern.FindAllString(text, -1) {
		if v, ok := ParseAmount(m); ok {
			out = append(out, v)
		}
	}
	return out
}

// FirstAmountWithin returns the first numeric substring strictly inside (min, max).
func FirstAmountWithin(text string, min, max float64) (float64, bool) {
	for _, v := range Amounts(text) {
		if v > min && v < max {
			return v, true
		}
	}
	return 0, false
}

// FirstInt returns the first run of digits in text.
func FirstInt(text string) (int, bool) {
	matches := integerPattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return 0, false
	}

	val, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}
	return val, true
}

// FirstDecimal returns the first unsigned decimal number in text.
func FirstDecimal(text string) (float64, bool) {
	matches := decimalPattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return 0, false
	}

	val, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}
	return val, true
}
