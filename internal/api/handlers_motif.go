// handlers_motif.go - Shared motif handlers
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/storage"
	"github.com/rueckwand/configurator/internal/upload"
)

// MotifHandlerImpl implements the MotifHandler interface
type MotifHandlerImpl struct {
	sessions SessionManager
	ingest   MotifIngester
	store    storage.Store
}

// NewMotifHandler creates a new motif handler
func NewMotifHandler(sessions SessionManager, ingest MotifIngester, store storage.Store) MotifHandler {
	return &MotifHandlerImpl{sessions: sessions, ingest: ingest, store: store}
}

type setMotifRequest struct {
	URL string `json:"url"`
}

// HandleSetMotif points all plates at a new motif URL
func (h *MotifHandlerImpl) HandleSetMotif(c echo.Context) error {
	var req setMotifRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	s, err := h.sessions.SetMotif(c.Request().Context(), c.Param("id"), strings.TrimSpace(req.URL))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, displayUnit(c)))
}

// uploadMotifRequest is the JSON form of an upload: a data URI as produced
// by a browser file reader.
type uploadMotifRequest struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type uploadMotifResponse struct {
	File    *models.FileInfo `json:"file"`
	Ref     string           `json:"ref"`
	Session sessionResponse  `json:"session"`
}

// HandleUploadMotif stores an uploaded image and makes it the session motif.
// Accepts multipart form field "file" or a JSON data URI body.
func (h *MotifHandlerImpl) HandleUploadMotif(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// Fail before storing anything when the session is unknown.
	if !h.sessions.Touch(id) {
		if _, err := h.sessions.Get(ctx, id); err != nil {
			return err
		}
	}

	var (
		result *upload.Result
		err    error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var req uploadMotifRequest
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
		if req.Data == "" {
			return NewValidationError("data")
		}
		result, err = h.ingest.IngestDataURI(req.Name, req.Data)
	} else {
		result, err = h.ingestMultipart(c)
	}
	if err != nil {
		return err
	}

	s, err := h.sessions.SetMotif(ctx, id, result.Ref)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, uploadMotifResponse{
		File:    result.File,
		Ref:     result.Ref,
		Session: newSessionResponse(s, displayUnit(c)),
	})
}

func (h *MotifHandlerImpl) ingestMultipart(c echo.Context) (*upload.Result, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, NewBadRequestError("missing file field", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, NewInternalError("failed to open upload", err)
	}
	defer f.Close()
	return h.ingest.Ingest(fh.Filename, f)
}

// HandleResetMotif restores the default motif
func (h *MotifHandlerImpl) HandleResetMotif(c echo.Context) error {
	s, err := h.sessions.ResetMotif(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, displayUnit(c)))
}

// HandleGetMotif streams a stored motif image. Stored files never change,
// so responses are cacheable for a long time.
func (h *MotifHandlerImpl) HandleGetMotif(c echo.Context) error {
	rc, info, err := h.store.Open(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrMotifNotFound) {
			return err
		}
		return NewInternalError("failed to open motif", err)
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	etag := fmt.Sprintf("%q", info.ID)
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	c.Response().Header().Set("ETag", etag)
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Stream(http.StatusOK, contentType, rc)
}
