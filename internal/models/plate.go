package models

// Plate is one physical panel of the wall. Position in Configuration.Plates
// decides its horizontal placement; no x coordinate is stored.
type Plate struct {
	ID       string  `json:"id" yaml:"id,omitempty" msgpack:"id"`
	WidthCm  float64 `json:"widthCm" yaml:"widthCm" msgpack:"widthCm"`
	HeightCm float64 `json:"heightCm" yaml:"heightCm" msgpack:"heightCm"`
}

// Configuration is the ordered plate list plus the motif shared by all plates.
type Configuration struct {
	Plates []Plate `json:"plates" yaml:"plates"`
	Motif  string  `json:"motifUrl" yaml:"motif"`
}

// Clone returns a deep copy so callers never alias store state.
func (c Configuration) Clone() Configuration {
	plates := make([]Plate, len(c.Plates))
	copy(plates, c.Plates)
	return Configuration{Plates: plates, Motif: c.Motif}
}

// Summary is the read-only overview shown next to the plate list.
type Summary struct {
	Count        int     `json:"count"`
	TotalWidthCm float64 `json:"totalWidthCm"`
	MaxHeightCm  float64 `json:"maxHeightCm"`
}

// Summarize computes the plate count, combined width and tallest plate.
func (c Configuration) Summarize() Summary {
	s := Summary{Count: len(c.Plates)}
	for _, p := range c.Plates {
		s.TotalWidthCm += p.WidthCm
		if p.HeightCm > s.MaxHeightCm {
			s.MaxHeightCm = p.HeightCm
		}
	}
	return s
}
