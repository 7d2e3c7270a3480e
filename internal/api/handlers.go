// handlers.go - Shared request parsing and response shapes
package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/units"
)

// DefaultViewport is used when a request names no preview size. The height
// matches the fixed preview box of the web client.
var DefaultViewport = layout.Viewport{WidthPx: 960, HeightPx: 360}

// plateView is a plate with its dimensions formatted in the display unit.
type plateView struct {
	models.Plate
	Width  string `json:"width"`
	Height string `json:"height"`
}

// sessionResponse is the JSON shape of a session.
type sessionResponse struct {
	ID        string         `json:"id"`
	Revision  int            `json:"revision"`
	Unit      units.Unit     `json:"unit"`
	Plates    []plateView    `json:"plates"`
	MotifURL  string         `json:"motifUrl"`
	Summary   models.Summary `json:"summary"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func newSessionResponse(s *models.Session, u units.Unit) sessionResponse {
	plates := make([]plateView, len(s.Configuration.Plates))
	for i, p := range s.Configuration.Plates {
		plates[i] = plateView{
			Plate:  p,
			Width:  units.Format(p.WidthCm, u),
			Height: units.Format(p.HeightCm, u),
		}
	}
	return sessionResponse{
		ID:        s.ID,
		Revision:  s.Revision,
		Unit:      u,
		Plates:    plates,
		MotifURL:  s.Configuration.Motif,
		Summary:   s.Configuration.Summarize(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// unitFromQuery reads ?unit=cm|in, defaulting to cm.
func unitFromQuery(c echo.Context) (units.Unit, error) {
	return units.ParseUnit(c.QueryParam("unit"))
}

// displayUnit is unitFromQuery for responses to edits: an unknown unit
// falls back to cm instead of failing an edit that already happened.
func displayUnit(c echo.Context) units.Unit {
	u, err := unitFromQuery(c)
	if err != nil {
		return units.Centimeter
	}
	return u
}

// viewportFromQuery reads ?width=&height= in pixels. Missing values take the
// defaults; values that are not positive numbers are rejected.
func viewportFromQuery(c echo.Context) (layout.Viewport, error) {
	vp := DefaultViewport
	for _, q := range []struct {
		name string
		dst  *float64
	}{
		{"width", &vp.WidthPx},
		{"height", &vp.HeightPx},
	} {
		raw := strings.TrimSpace(c.QueryParam(q.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(v > 0) || v > 1e5 {
			return layout.Viewport{}, NewValidationError(q.name)
		}
		*q.dst = v
	}
	return vp, nil
}

// floatQuery reads an optional float query parameter.
func floatQuery(c echo.Context, name string) (float64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, NewValidationError(name)
	}
	return v, nil
}
