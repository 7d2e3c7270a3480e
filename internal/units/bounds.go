package units

import "fmt"

// Bounds is an inclusive range in centimeters.
type Bounds struct {
	MinCm float64 `json:"minCm" yaml:"min_cm"`
	MaxCm float64 `json:"maxCm" yaml:"max_cm"`
}

// Contains reports whether cm lies inside the range.
func (b Bounds) Contains(cm float64) bool {
	return cm >= b.MinCm && cm <= b.MaxCm
}

// Clamp pulls cm into the range.
func (b Bounds) Clamp(cm float64) float64 {
	if cm < b.MinCm {
		return b.MinCm
	}
	if cm > b.MaxCm {
		return b.MaxCm
	}
	return cm
}

// Check returns a *RangeError when cm is outside the range. The message uses
// unit u so it can be shown next to the field the user typed in.
func (b Bounds) Check(cm float64, u Unit) error {
	if b.Contains(cm) {
		return nil
	}
	return &RangeError{Value: cm, Bounds: b, Unit: u}
}

// Range formats the bounds in unit u.
func (b Bounds) Range(u Unit) string {
	return FormatRange(b.MinCm, b.MaxCm, u)
}

// RangeError reports a dimension outside its allowed range.
type RangeError struct {
	Value  float64
	Bounds Bounds
	Unit   Unit
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %s out of range, allowed %s", Format(e.Value, e.Unit), e.Unit, e.Bounds.Range(e.Unit))
}

// ParseDimension reads a user-typed value in unit u, converts it to
// centimeters and checks it against b.
func ParseDimension(input string, u Unit, b Bounds) (float64, error) {
	n, err := ParseLocaleNumber(input)
	if err != nil {
		return 0, err
	}
	cm := ToCm(n, u)
	if err := b.Check(cm, u); err != nil {
		return 0, err
	}
	return cm, nil
}
