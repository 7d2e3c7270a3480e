// handlers_plates.go - Plate list editing handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/session"
	"github.com/rueckwand/configurator/internal/units"
)

// PlateHandlerImpl implements the PlateHandler interface
type PlateHandlerImpl struct {
	sessions SessionManager
}

// NewPlateHandler creates a new plate handler
func NewPlateHandler(sessions SessionManager) PlateHandler {
	return &PlateHandlerImpl{sessions: sessions}
}

// HandleAddPlate appends a plate of the default new-plate size
func (h *PlateHandlerImpl) HandleAddPlate(c echo.Context) error {
	s, err := h.sessions.AddPlate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newSessionResponse(s, displayUnit(c)))
}

// updatePlateRequest holds the values as typed by the user, e.g. "12,5".
type updatePlateRequest struct {
	Width  *string `json:"width"`
	Height *string `json:"height"`
	Unit   string  `json:"unit"`
}

// HandleUpdatePlate changes width and/or height. Values are parsed in the
// given unit and checked against the limits; errors name the allowed range
// in that unit.
func (h *PlateHandlerImpl) HandleUpdatePlate(c echo.Context) error {
	var req updatePlateRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Width == nil && req.Height == nil {
		return NewValidationError("width")
	}

	u, err := units.ParseUnit(req.Unit)
	if err != nil {
		return err
	}

	d := h.sessions.Defaults()
	var upd session.DimensionUpdate
	if req.Width != nil {
		cm, err := units.ParseDimension(*req.Width, u, d.Width)
		if err != nil {
			return fieldError("width", err)
		}
		upd.WidthCm = &cm
	}
	if req.Height != nil {
		cm, err := units.ParseDimension(*req.Height, u, d.Height)
		if err != nil {
			return fieldError("height", err)
		}
		upd.HeightCm = &cm
	}

	s, err := h.sessions.UpdatePlate(c.Request().Context(), c.Param("id"), c.Param("plateId"), upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, u))
}

// HandleRemovePlate deletes a plate; the last plate cannot be removed
func (h *PlateHandlerImpl) HandleRemovePlate(c echo.Context) error {
	s, err := h.sessions.RemovePlate(c.Request().Context(), c.Param("id"), c.Param("plateId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, displayUnit(c)))
}

// reorderRequest is either a single move or a full order.
type reorderRequest struct {
	From  *int     `json:"from"`
	To    *int     `json:"to"`
	Order []string `json:"order"`
}

// HandleReorderPlates moves a plate (from/to) or applies a full id order
func (h *PlateHandlerImpl) HandleReorderPlates(c echo.Context) error {
	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	ctx := c.Request().Context()
	id := c.Param("id")

	var (
		s   *models.Session
		err error
	)
	switch {
	case len(req.Order) > 0:
		s, err = h.sessions.ReorderByIDs(ctx, id, req.Order)
	case req.From != nil && req.To != nil:
		s, err = h.sessions.Reorder(ctx, id, *req.From, *req.To)
	default:
		return NewValidationError("order")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, displayUnit(c)))
}

// fieldError attaches the field name to a parse or range error.
func fieldError(field string, err error) error {
	apiErr := mapError(err)
	out := *apiErr
	out.Message = field + ": " + apiErr.Message
	return &out
}
