// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rueckwand/configurator/internal/config"
	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions       SessionManager
	Motifs         storage.Store
	Ingest         MotifIngester
	Exporter       Exporter
	Layout         layout.Config
	ExportFileName string
	Logger         *log.Logger
	Version        string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Session   SessionHandler
	Plate     PlateHandler
	Motif     MotifHandler
	Layout    LayoutHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions),
		Session:   NewSessionHandler(deps.Sessions, logger.WithPrefix("import")),
		Plate:     NewPlateHandler(deps.Sessions),
		Motif:     NewMotifHandler(deps.Sessions, deps.Ingest, deps.Motifs),
		Layout:    NewLayoutHandler(deps.Sessions, deps.Exporter, deps.Layout, deps.ExportFileName),
		WebSocket: NewWebSocketHandler(deps.Sessions, deps.Layout, logger.WithPrefix("ws")),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/limits", handlers.Layout.HandleGetLimits)

	// Session lifecycle
	apiGroup.POST("/sessions", handlers.Session.HandleCreateSession)
	apiGroup.GET("/sessions/:id", handlers.Session.HandleGetSession)
	apiGroup.POST("/sessions/:id/reset", handlers.Session.HandleResetSession)
	apiGroup.POST("/sessions/:id/import", handlers.Session.HandleImportStorage)
	apiGroup.GET("/sessions/:id/export/storage", handlers.Session.HandleExportStorage)

	// Plate list
	apiGroup.POST("/sessions/:id/plates", handlers.Plate.HandleAddPlate)
	apiGroup.POST("/sessions/:id/plates/reorder", handlers.Plate.HandleReorderPlates)
	apiGroup.PATCH("/sessions/:id/plates/:plateId", handlers.Plate.HandleUpdatePlate)
	apiGroup.DELETE("/sessions/:id/plates/:plateId", handlers.Plate.HandleRemovePlate)

	// Motif
	apiGroup.PUT("/sessions/:id/motif", handlers.Motif.HandleSetMotif)
	apiGroup.POST("/sessions/:id/motif/upload", handlers.Motif.HandleUploadMotif)
	apiGroup.DELETE("/sessions/:id/motif", handlers.Motif.HandleResetMotif)
	apiGroup.GET("/motifs/:id", handlers.Motif.HandleGetMotif)

	// Layout and export
	apiGroup.GET("/sessions/:id/layout", handlers.Layout.HandleGetLayout)
	apiGroup.GET("/sessions/:id/layout/msgpack", handlers.Layout.HandleGetLayoutMsgpack)
	apiGroup.GET("/sessions/:id/export.png", handlers.Layout.HandleExportPNG)

	// Live preview
	apiGroup.GET("/sessions/:id/ws", handlers.WebSocket.HandleWebSocket)
}

// isQuietPath reports paths excluded from request logging and timeouts.
func isQuietPath(path string) bool {
	return path == "/api/health" || strings.HasSuffix(path, "/ws")
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg config.ServerConfig, logger *log.Logger) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	if cfg.EnableRequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				return isQuietPath(c.Request().URL.Path)
			},
			LogMethod:   true,
			LogURI:      true,
			LogStatus:   true,
			LogLatency:  true,
			LogError:    true,
			HandleError: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				kv := []interface{}{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
				if v.Error != nil {
					logger.Warn("request", append(kv, "err", v.Error)...)
					return nil
				}
				logger.Info("request", kv...)
				return nil
			},
		}))
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.ReadTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: time.Duration(cfg.ReadTimeout) * time.Second,
			Skipper: func(c echo.Context) bool {
				return isQuietPath(c.Request().URL.Path) || strings.HasSuffix(c.Request().URL.Path, "/upload")
			},
			ErrorMessage: "Request timeout - rendering took too long",
		}))
	}

	// Compression middleware
	if cfg.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/ws") ||
					strings.HasSuffix(path, ".png") ||
					strings.HasPrefix(path, "/api/motifs/")
			},
		}))
	}

	// Body limit middleware
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	// CORS configuration
	if cfg.EnableCORS {
		origins := strings.Split(cfg.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}
