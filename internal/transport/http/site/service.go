// Package site serves the landing page, health and status probes, and API docs.
package site

import (
	"context"
	"embed"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/swaggo/swag"

	_ "plant-doctor-bot/internal/docs"
	"plant-doctor-bot/internal/domain/dedup/store"
	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/logging"
	"plant-doctor-bot/internal/platform/observability"
	httptransport "plant-doctor-bot/internal/transport/http"
)

// ServiceName is reported by /health and /api/status.
const ServiceName = "plant-doctor-bot"

//go:embed web
var webFS embed.FS

const scalarHTML = `<!DOCTYPE html>
<html lang="en">
	<head>
		<meta charset="utf-8" />
		<title>Plant Doctor Bot API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

type Options struct {
	Backend string
	// Ledger is optional; /api/status omits ledger stats without it.
	Ledger store.Store
	Logger *logging.Logger
}

type Service struct {
	backend   string
	ledger    store.Store
	logger    *logging.Logger
	startedAt time.Time
}

// StatusData is the payload of /api/status.
type StatusData struct {
	Service              string             `json:"service"`
	Backend              string             `json:"backend"`
	StartedAt            time.Time          `json:"started_at"`
	ProcessUptimeSeconds int64              `json:"process_uptime_seconds"`
	HostUptimeSeconds    uint64             `json:"host_uptime_seconds,omitempty"`
	Memory               map[string]any     `json:"memory,omitempty"`
	Ledger               map[string]any     `json:"ledger,omitempty"`
	Counters             map[string]float64 `json:"counters"`
}

func NewService(opts Options) (*Service, error) {
	if opts.Backend == "" {
		return nil, errors.New(errors.KindConfig, "site.new", "backend name is required")
	}
	return &Service{
		backend:   opts.Backend,
		ledger:    opts.Ledger,
		logger:    opts.Logger,
		startedAt: time.Now(),
	}, nil
}

// Register mounts the site routes on the root group.
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	assets, err := static.EmbedFolder(webFS, "web/assets")
	if err != nil {
		return errors.Wrap(errors.KindTransport, "site.register", "embed assets", err)
	}

	router.GET("/", s.handleHome)
	router.StaticFS("/assets", assets)
	router.GET("/health", s.handleHealth)
	router.GET("/api/status", s.handleStatus)
	router.GET("/api/ledger/:update_id", s.handleLedgerLookup)
	router.GET("/openapi.json", s.handleOpenAPI)
	router.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(scalarHTML))
	})
	s.logger.InfoTag("HTTP", "site routes registered")
	return nil
}

func (s *Service) handleHome(c *gin.Context) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "home page unavailable")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// handleHealth reports liveness.
// @Summary Liveness probe
// @Tags Site
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
}

// handleStatus reports process and host state.
// @Summary Service status
// @Description Uptime, memory, update ledger statistics and the active analyzer backend.
// @Tags Site
// @Produce json
// @Success 200 {object} StatusData
// @Router /api/status [get]
func (s *Service) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	data := StatusData{
		Service:              ServiceName,
		Backend:              s.backend,
		StartedAt:            s.startedAt,
		ProcessUptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Counters:             observability.Snapshot(),
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		data.HostUptimeSeconds = uptime
	} else {
		s.logger.DebugTag("HTTP", "host uptime unavailable: %v", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		data.Memory = map[string]any{
			"total":        vm.Total,
			"available":    vm.Available,
			"used_percent": vm.UsedPercent,
		}
	} else {
		s.logger.DebugTag("HTTP", "memory stats unavailable: %v", err)
	}

	if s.ledger != nil {
		stats, err := s.ledger.Stats(ctx)
		if err != nil {
			s.logger.WarnTag("DEDUP", "ledger stats failed: %v", err)
			stats = map[string]any{"error": err.Error()}
		}
		data.Ledger = stats
	}

	httptransport.RespondSuccess(c, http.StatusOK, data, "")
}

// handleLedgerLookup reports whether an update id is still recorded as handled.
// @Summary Update ledger lookup
// @Tags Site
// @Produce json
// @Param update_id path int true "Telegram update id"
// @Success 200 {object} httptransport.APIResponse
// @Failure 400 {object} httptransport.APIResponse
// @Failure 404 {object} httptransport.APIResponse
// @Router /api/ledger/{update_id} [get]
func (s *Service) handleLedgerLookup(c *gin.Context) {
	if s.ledger == nil {
		httptransport.RespondError(c, http.StatusNotFound, "update ledger disabled", nil)
		return
	}

	updateID, err := strconv.ParseInt(c.Param("update_id"), 10, 64)
	if err != nil || updateID <= 0 {
		httptransport.RespondError(c, http.StatusBadRequest, "update_id must be a positive integer", nil)
		return
	}

	seen, err := s.ledger.Seen(c.Request.Context(), updateID)
	if err != nil {
		s.logger.WarnTag("DEDUP", "ledger lookup for update %d failed: %v", updateID, err)
		httptransport.RespondError(c, http.StatusInternalServerError, "ledger lookup failed", gin.H{"error": err.Error()})
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"update_id": updateID, "seen": seen}, "")
}

func (s *Service) handleOpenAPI(c *gin.Context) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.logger.ErrorTag("HTTP", "rendering openapi document failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to generate openapi spec", gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
}
