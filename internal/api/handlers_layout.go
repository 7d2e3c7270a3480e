// handlers_layout.go - Layout, export and limits handlers
package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/persistence"
	"github.com/rueckwand/configurator/internal/units"
	"github.com/vmihailenco/msgpack/v5"
)

// LayoutHandlerImpl implements the LayoutHandler interface
type LayoutHandlerImpl struct {
	sessions SessionManager
	exporter Exporter
	layout   layout.Config
	fileName string
}

// NewLayoutHandler creates a new layout handler
func NewLayoutHandler(sessions SessionManager, exporter Exporter, cfg layout.Config, exportFileName string) LayoutHandler {
	if exportFileName == "" {
		exportFileName = "Rueckwand-Preview.png"
	}
	return &LayoutHandlerImpl{sessions: sessions, exporter: exporter, layout: cfg, fileName: exportFileName}
}

func (h *LayoutHandlerImpl) compute(c echo.Context) (layout.Result, error) {
	vp, err := viewportFromQuery(c)
	if err != nil {
		return layout.Result{}, err
	}
	s, err := h.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return layout.Result{}, err
	}
	return layout.Compute(s.Configuration.Plates, s.Configuration.Motif, vp, h.layout), nil
}

// HandleGetLayout returns the preview geometry for ?width=&height= pixels
func (h *LayoutHandlerImpl) HandleGetLayout(c echo.Context) error {
	res, err := h.compute(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// HandleGetLayoutMsgpack returns the same geometry encoded as MessagePack
func (h *LayoutHandlerImpl) HandleGetLayoutMsgpack(c echo.Context) error {
	res, err := h.compute(c)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(res)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleExportPNG renders the preview at ?width=&height= times ?ratio=
func (h *LayoutHandlerImpl) HandleExportPNG(c echo.Context) error {
	vp, err := viewportFromQuery(c)
	if err != nil {
		return err
	}
	ratio, err := floatQuery(c, "ratio")
	if err != nil {
		return err
	}
	s, err := h.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	data, err := h.exporter.ExportPNG(c.Request().Context(), s.Configuration.Plates, s.Configuration.Motif, vp, ratio)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", h.fileName))
	return c.Blob(http.StatusOK, "image/png", data)
}

type rangeView struct {
	MinCm float64           `json:"minCm"`
	MaxCm float64           `json:"maxCm"`
	Label map[string]string `json:"label"`
}

type limitsResponse struct {
	Width            rangeView     `json:"width"`
	Height           rangeView     `json:"height"`
	MinPlates        int           `json:"minPlates"`
	MaxPlates        int           `json:"maxPlates"`
	MaxHeightCm      float64       `json:"maxHeightCm"`
	BaseMotifWidthCm float64       `json:"baseMotifWidthCm"`
	NewPlate         plateDefaults `json:"newPlate"`
	DefaultPlate     plateDefaults `json:"defaultPlate"`
	DefaultMotif     string        `json:"defaultMotif"`
	StorageKeys      []string      `json:"storageKeys"`
}

type plateDefaults struct {
	WidthCm  float64 `json:"widthCm"`
	HeightCm float64 `json:"heightCm"`
}

func newRangeView(b units.Bounds) rangeView {
	return rangeView{
		MinCm: b.MinCm,
		MaxCm: b.MaxCm,
		Label: map[string]string{
			string(units.Centimeter): b.Range(units.Centimeter),
			string(units.Inch):       b.Range(units.Inch),
		},
	}
}

// HandleGetLimits returns input ranges and defaults for the editor
func (h *LayoutHandlerImpl) HandleGetLimits(c echo.Context) error {
	d := h.sessions.Defaults()
	return c.JSON(http.StatusOK, limitsResponse{
		Width:            newRangeView(d.Width),
		Height:           newRangeView(d.Height),
		MinPlates:        1,
		MaxPlates:        d.MaxPlates,
		MaxHeightCm:      h.layout.MaxHeightCm,
		BaseMotifWidthCm: h.layout.BaseMotifWidthCm,
		NewPlate:         plateDefaults{d.NewPlate.WidthCm, d.NewPlate.HeightCm},
		DefaultPlate:     plateDefaults{d.Plate.WidthCm, d.Plate.HeightCm},
		DefaultMotif:     d.Motif,
		StorageKeys:      []string{persistence.StorageKeyPlates, persistence.StorageKeyLegacy},
	})
}
