// handlers_session.go - Session lifecycle and browser storage handlers
package api

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/persistence"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions SessionManager
	logger   *log.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionManager, logger *log.Logger) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions, logger: logger}
}

// HandleCreateSession starts a configurator session with the default plates
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	u, err := unitFromQuery(c)
	if err != nil {
		return err
	}
	s, err := h.sessions.Create(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newSessionResponse(s, u))
}

// HandleGetSession returns the current plates and motif
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	u, err := unitFromQuery(c)
	if err != nil {
		return err
	}
	s, err := h.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, u))
}

// HandleResetSession replaces the plates with one default plate
func (h *SessionHandlerImpl) HandleResetSession(c echo.Context) error {
	s, err := h.sessions.Reset(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, displayUnit(c)))
}

// importStorageRequest carries raw browser storage values, keyed like the
// browser stores them. Values are the stored JSON text.
type importStorageRequest map[string]string

type importStorageResponse struct {
	Session sessionResponse    `json:"session"`
	Report  persistence.Report `json:"report"`
}

// HandleImportStorage migrates a browser's saved plates into the session.
// Damaged values are repaired field by field; the report lists each repair.
func (h *SessionHandlerImpl) HandleImportStorage(c echo.Context) error {
	var req importStorageRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	current := req[persistence.StorageKeyPlates]
	legacy := req[persistence.StorageKeyLegacy]
	cfg, report := persistence.Decode([]byte(current), []byte(legacy), h.sessions.Defaults())

	for _, sub := range report.Substitutions {
		h.logger.Warn("repaired imported plate", "session", c.Param("id"), "source", report.Source,
			"index", sub.Index, "field", sub.Field, "reason", sub.Reason)
	}

	s, err := h.sessions.Replace(c.Request().Context(), c.Param("id"), cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, importStorageResponse{
		Session: newSessionResponse(s, displayUnit(c)),
		Report:  report,
	})
}

// HandleExportStorage returns the session in the browser's storage format
func (h *SessionHandlerImpl) HandleExportStorage(c echo.Context) error {
	s, err := h.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	payload, err := persistence.Encode(s.Configuration)
	if err != nil {
		return NewInternalError("failed to encode plates", err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		persistence.StorageKeyPlates: string(payload),
	})
}
