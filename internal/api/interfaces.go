// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/persistence"
	"github.com/rueckwand/configurator/internal/realtime"
	"github.com/rueckwand/configurator/internal/render"
	"github.com/rueckwand/configurator/internal/session"
	"github.com/rueckwand/configurator/internal/upload"
)

// SessionHandler handles session lifecycle and browser storage exchange
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleResetSession(c echo.Context) error
	HandleImportStorage(c echo.Context) error
	HandleExportStorage(c echo.Context) error
}

// PlateHandler handles plate list editing
type PlateHandler interface {
	HandleAddPlate(c echo.Context) error
	HandleUpdatePlate(c echo.Context) error
	HandleRemovePlate(c echo.Context) error
	HandleReorderPlates(c echo.Context) error
}

// MotifHandler handles the shared motif
type MotifHandler interface {
	HandleSetMotif(c echo.Context) error
	HandleUploadMotif(c echo.Context) error
	HandleResetMotif(c echo.Context) error
	HandleGetMotif(c echo.Context) error
}

// LayoutHandler serves computed layouts and exports
type LayoutHandler interface {
	HandleGetLayout(c echo.Context) error
	HandleGetLayoutMsgpack(c echo.Context) error
	HandleExportPNG(c echo.Context) error
	HandleGetLimits(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the plate store operations the handlers use.
// This allows mocking in tests
type SessionManager interface {
	Create(ctx context.Context) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Touch(id string) bool
	Len() int
	Defaults() persistence.Defaults
	Events() *realtime.Broadcaster
	AddPlate(ctx context.Context, id string) (*models.Session, error)
	RemovePlate(ctx context.Context, id, plateID string) (*models.Session, error)
	UpdatePlate(ctx context.Context, id, plateID string, upd session.DimensionUpdate) (*models.Session, error)
	Reorder(ctx context.Context, id string, from, to int) (*models.Session, error)
	ReorderByIDs(ctx context.Context, id string, ids []string) (*models.Session, error)
	SetMotif(ctx context.Context, id, ref string) (*models.Session, error)
	ResetMotif(ctx context.Context, id string) (*models.Session, error)
	Reset(ctx context.Context, id string) (*models.Session, error)
	Replace(ctx context.Context, id string, cfg models.Configuration) (*models.Session, error)
}

// Exporter renders a configuration to PNG.
type Exporter interface {
	ExportPNG(ctx context.Context, plates []models.Plate, motif string, vp layout.Viewport, ratio float64) ([]byte, error)
}

// MotifIngester stores uploaded motif images.
type MotifIngester interface {
	Ingest(name string, r io.Reader) (*upload.Result, error)
	IngestDataURI(name, uri string) (*upload.Result, error)
}

var (
	_ SessionManager = (*session.Manager)(nil)
	_ MotifIngester  = (*upload.Manager)(nil)
	_ Exporter       = (*render.Exporter)(nil)
)
