package units

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocaleNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"integer", "250", 250, false},
		{"dot decimal", "12.5", 12.5, false},
		{"comma decimal", "12,5", 12.5, false},
		{"surrounding spaces", "  30 ", 30, false},
		{"inner thin space", "1 000", 1000, false},
		{"negative", "-3", -3, false},
		{"empty", "", 0, true},
		{"only spaces", "   ", 0, true},
		{"two dots", "1.2.3", 0, true},
		{"comma and dot", "1,2.3", 0, true},
		{"letters", "abc", 0, true},
		{"trailing comma", "12,", 0, true},
		{"infinity", "Inf", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocaleNumber(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotANumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "250", FormatNumber(250))
	assert.Equal(t, "12.5", FormatNumber(12.5))
	assert.Equal(t, "", FormatNumber(nan()))
}

func TestUnitConversion(t *testing.T) {
	assert.Equal(t, 98.43, FromCm(250, Inch))
	assert.Equal(t, 50.39, FromCm(128, Inch))
	assert.Equal(t, 250.0, FromCm(250, Centimeter))
	assert.InDelta(t, 254.0, ToCm(100, Inch), 1e-9)
	assert.Equal(t, 30.0, ToCm(30, Centimeter))
	assert.Equal(t, "98.43", Format(250, Inch))
}

func TestFormatRange(t *testing.T) {
	assert.Equal(t, "20–300 cm", FormatRange(20, 300, Centimeter))
	assert.Equal(t, "7.87–118.11 in", FormatRange(20, 300, Inch))
	assert.Equal(t, "11.81–50.39 in", FormatRange(30, 128, Inch))
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, Centimeter, u)

	u, err = ParseUnit("IN")
	require.NoError(t, err)
	assert.Equal(t, Inch, u)

	_, err = ParseUnit("mm")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestParseDimension(t *testing.T) {
	width := Bounds{MinCm: 20, MaxCm: 300}

	cm, err := ParseDimension("12,5", Centimeter, Bounds{MinCm: 10, MaxCm: 20})
	require.NoError(t, err)
	assert.Equal(t, 12.5, cm)

	cm, err = ParseDimension("50", Inch, width)
	require.NoError(t, err)
	assert.InDelta(t, 127.0, cm, 1e-9)

	_, err = ParseDimension("301", Centimeter, width)
	var rangeErr *RangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, 301.0, rangeErr.Value)
	assert.Contains(t, err.Error(), "20–300 cm")

	_, err = ParseDimension("200", Inch, width)
	require.True(t, errors.As(err, &rangeErr))
	assert.Contains(t, err.Error(), "7.87–118.11 in")

	_, err = ParseDimension("x", Centimeter, width)
	assert.ErrorIs(t, err, ErrNotANumber)
}

func TestBounds(t *testing.T) {
	b := Bounds{MinCm: 30, MaxCm: 128}
	assert.True(t, b.Contains(30))
	assert.True(t, b.Contains(128))
	assert.False(t, b.Contains(128.01))
	assert.Equal(t, 30.0, b.Clamp(5))
	assert.Equal(t, 128.0, b.Clamp(500))
	assert.Equal(t, 64.0, b.Clamp(64))
	assert.NoError(t, b.Check(64, Centimeter))
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
