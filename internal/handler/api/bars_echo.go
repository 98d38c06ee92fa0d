package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"BarLake/internal/domain/models"
	"BarLake/internal/middleware"
	"BarLake/internal/service/ratelimit"
	"BarLake/internal/source"
	"BarLake/internal/usecase"
	xhttp "BarLake/pkg/http"
	xlogger "BarLake/pkg/logger"
	"BarLake/pkg/queue"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// BarsEchoHandler serves bar queries, uploads and repair triggers.
type BarsEchoHandler struct {
	logger    *xlogger.Logger
	query     *usecase.QueryEngine
	files     *usecase.FileIngestor
	repairer  *usecase.GapRepairer
	jobs      queue.Enqueuer
	limiter   *ratelimit.Limiter
	checks    map[string]HealthCheck
	ingestDir string
}

type BarsOption func(*BarsEchoHandler)

// WithJobQueue makes repair requests asynchronous unless ?sync=true.
func WithJobQueue(q queue.Enqueuer) BarsOption {
	return func(h *BarsEchoHandler) { h.jobs = q }
}

func WithRateLimiter(l *ratelimit.Limiter) BarsOption {
	return func(h *BarsEchoHandler) { h.limiter = l }
}

func WithHealthCheck(name string, check HealthCheck) BarsOption {
	return func(h *BarsEchoHandler) { h.checks[name] = check }
}

func WithIngestDir(dir string) BarsOption {
	return func(h *BarsEchoHandler) { h.ingestDir = dir }
}

func NewBarsEchoHandler(
	logger *xlogger.Logger,
	query *usecase.QueryEngine,
	files *usecase.FileIngestor,
	repairer *usecase.GapRepairer,
	opts ...BarsOption,
) *BarsEchoHandler {
	h := &BarsEchoHandler{
		logger:   logger,
		query:    query,
		files:    files,
		repairer: repairer,
		checks:   make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *BarsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/", h.Index)
	g.GET("/health", h.Health)
	g.GET("/symbols", h.Symbols)

	var fetchMW []echo.MiddlewareFunc
	if h.limiter != nil {
		fetchMW = append(fetchMW, middleware.RateLimit(h.limiter))
	}
	g.GET("/fetch/:symbol/:start/:end", h.Fetch, fetchMW...)

	g.POST("/upload-csv", h.Upload)
	g.POST("/ingest-dir", h.IngestDir)
	g.POST("/repair", h.RepairAll)
	g.POST("/repair/:symbol", h.Repair)
}

func (h *BarsEchoHandler) Index(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"service": "barlake",
		"endpoints": []string{
			"GET /api/fetch/:symbol/:start/:end",
			"POST /api/upload-csv",
			"POST /api/ingest-dir",
			"POST /api/repair/:symbol",
			"GET /api/symbols",
			"GET /api/health",
		},
	})
}

func (h *BarsEchoHandler) Fetch(c echo.Context) error {
	req := &models.FetchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start, aerr := xhttp.ParseDateParam("start", req.Start)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	end, aerr := xhttp.ParseDateParam("end", req.End)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	bars, err := h.query.Fetch(c.Request().Context(), req.Symbol, start, end, req.UseCache())
	if err != nil {
		h.logger.Error("fetch usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.FetchResponse{
		Symbol: models.NormalizeSymbol(req.Symbol),
		Start:  start.Format(models.DateLayout),
		End:    end.Format(models.DateLayout),
		Count:  len(bars),
		Bars:   bars,
	})
}

func (h *BarsEchoHandler) Symbols(c echo.Context) error {
	symbols, err := h.query.Symbols(c.Request().Context())
	if err != nil {
		h.logger.Error("symbols usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, symbols, int64(len(symbols)))
}

// Upload accepts one batch either as a multipart "file" field or as the
// raw request body. The reader is chosen by file extension; a raw body
// without ?name= is read as CSV.
func (h *BarsEchoHandler) Upload(c echo.Context) error {
	raw, aerr := h.readUpload(c)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	report, err := h.files.IngestRaw(c.Request().Context(), raw)
	if err != nil {
		return xhttp.UnprocessableResponse(c, report)
	}
	if report.Success() {
		return xhttp.SuccessResponse(c, report)
	}
	if ferr := report.Err(); ferr != nil {
		return xhttp.DataResponse(c, xhttp.FromError(ferr).Status, report)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *BarsEchoHandler) readUpload(c echo.Context) (models.RawBatch, *xhttp.AppError) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return models.RawBatch{}, xhttp.BadRequestError("multipart field \"file\" is required").WithError(err)
		}
		reader, ok := source.ForName(fh.Filename)
		if !ok {
			return models.RawBatch{}, xhttp.BadRequestErrorf("unsupported file type %q", filepath.Ext(fh.Filename))
		}
		f, err := fh.Open()
		if err != nil {
			return models.RawBatch{}, xhttp.BadRequestError("cannot open upload").WithError(err)
		}
		defer f.Close()

		raw, err := reader.Read(f, fh.Size, fh.Filename)
		if err != nil {
			return models.RawBatch{}, xhttp.BadRequestError(err.Error()).WithError(err)
		}
		raw.Source = "upload:" + fh.Filename
		return raw, nil
	}

	name := c.QueryParam("name")
	if name == "" {
		name = "body.csv"
	}
	reader, ok := source.ForName(name)
	if !ok {
		return models.RawBatch{}, xhttp.BadRequestErrorf("unsupported file type %q", filepath.Ext(name))
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.RawBatch{}, xhttp.NewAppError("ERR_TOO_LARGE", "", "request body too large", http.StatusRequestEntityTooLarge)
		}
		return models.RawBatch{}, xhttp.BadRequestError("cannot read body").WithError(err)
	}
	if len(body) == 0 {
		return models.RawBatch{}, xhttp.BadRequestError("empty body")
	}
	raw, err := reader.Read(bytes.NewReader(body), int64(len(body)), name)
	if err != nil {
		return models.RawBatch{}, xhttp.BadRequestError(err.Error()).WithError(err)
	}
	raw.Source = "upload:" + name
	return raw, nil
}

// IngestDir ingests the configured directory. The path is never taken
// from the request.
func (h *BarsEchoHandler) IngestDir(c echo.Context) error {
	if h.ingestDir == "" {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no ingest directory configured"))
	}
	summary, err := h.files.IngestDir(c.Request().Context(), h.ingestDir)
	if err != nil {
		h.logger.Error("ingest dir error", xlogger.String("dir", h.ingestDir), xlogger.Error(err))
		if summary == nil {
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.SuccessResponse(c, summary)
}

func (h *BarsEchoHandler) Repair(c echo.Context) error {
	req := &models.RepairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Sync = xhttp.QueryBool(c.QueryParam("sync"), false)
	symbol := models.NormalizeSymbol(req.Symbol)

	if h.jobs != nil && !req.Sync {
		if err := h.jobs.Enqueue(c.Request().Context(), usecase.RepairJobType, usecase.RepairPayload{Symbol: symbol}); err != nil {
			h.logger.Error("enqueue repair failed", xlogger.String("symbol", symbol), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("job queue unavailable").WithError(err))
		}
		return xhttp.AcceptedResponse(c, map[string]string{"symbol": symbol, "status": "queued"})
	}

	report, err := h.repairer.DetectAndRepairGaps(c.Request().Context(), symbol)
	if err != nil {
		h.logger.Error("repair usecase error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *BarsEchoHandler) RepairAll(c echo.Context) error {
	if h.jobs != nil && !xhttp.QueryBool(c.QueryParam("sync"), false) {
		if err := h.jobs.Enqueue(c.Request().Context(), usecase.RepairJobType, usecase.RepairPayload{}); err != nil {
			h.logger.Error("enqueue repair-all failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("job queue unavailable").WithError(err))
		}
		return xhttp.AcceptedResponse(c, map[string]string{"status": "queued"})
	}

	reports, err := h.repairer.RepairAll(c.Request().Context())
	if err != nil {
		h.logger.Error("repair-all usecase error", xlogger.Error(err))
		if len(reports) == 0 {
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.ListResponse(c, reports, int64(len(reports)))
}

func (h *BarsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}
