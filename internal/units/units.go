// Package units is the single conversion boundary between physical values in
// centimeters and the strings a user types or reads in a display unit.
// Everything behind this boundary works in centimeters.
package units

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Unit is a display unit for plate dimensions.
type Unit string

const (
	Centimeter Unit = "cm"
	Inch       Unit = "in"
)

// CmPerInch is the exact inch definition.
const CmPerInch = 2.54

// ErrNotANumber is returned when an input cannot be read as a number.
var ErrNotANumber = errors.New("not a number")

// ErrUnknownUnit is returned by ParseUnit for anything but cm and in.
var ErrUnknownUnit = errors.New("unknown unit")

// commaDecimal matches a comma used as decimal separator.
var commaDecimal = regexp.MustCompile(`,(\d)`)

// ParseUnit accepts "cm" and "in" (case-insensitive); empty means cm.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cm":
		return Centimeter, nil
	case "in", "inch", "inches":
		return Inch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// ParseLocaleNumber reads a number typed with either a dot or a comma as
// decimal separator. Whitespace anywhere in the input is ignored. More than
// one dot, empty input and non-finite results are rejected.
func ParseLocaleNumber(s string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	cleaned = commaDecimal.ReplaceAllString(cleaned, ".$1")

	if cleaned == "" || strings.Count(cleaned, ".") > 1 {
		return 0, fmt.Errorf("%w: %q", ErrNotANumber, s)
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotANumber, s)
	}
	return n, nil
}

// FormatNumber renders n in its shortest form; non-finite values render empty.
func FormatNumber(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return ""
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FromCm converts centimeters into the display unit. Inches are rounded to
// two decimals.
func FromCm(cm float64, u Unit) float64 {
	if u == Inch {
		return math.Round(cm/CmPerInch*100) / 100
	}
	return cm
}

// ToCm converts a value in the display unit back into centimeters.
func ToCm(v float64, u Unit) float64 {
	if u == Inch {
		return v * CmPerInch
	}
	return v
}

// Format renders a centimeter value in the display unit.
func Format(cm float64, u Unit) string {
	return FormatNumber(FromCm(cm, u))
}

// FormatRange renders an allowed range, e.g. "20–300 cm" or "7.87–118.11 in".
func FormatRange(minCm, maxCm float64, u Unit) string {
	f := func(cm float64) string {
		if u == Inch {
			return strconv.FormatFloat(FromCm(cm, u), 'f', 2, 64)
		}
		return FormatNumber(cm)
	}
	return fmt.Sprintf("%s–%s %s", f(minCm), f(maxCm), u)
}
