// Package api implements the REST API for plots, sweeps and ad-hoc
// expression evaluation.
package api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/parser"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
	"github.com/lemonberrylabs/i64-plotter/pkg/store"
	"github.com/lemonberrylabs/i64-plotter/pkg/types"
)

// Server is the REST API server.
type Server struct {
	app     *fiber.App
	store   *store.Store
	logger  zerolog.Logger
	workers int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithWorkers sets the number of workers used by each sweep.
func WithWorkers(n int) Option {
	return func(s *Server) { s.workers = n }
}

// New creates a new API server.
func New(s *store.Store, opts ...Option) *Server {
	srv := &Server{
		store:  s,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             parser.MaxSourceSize * 4,
	})

	// Plots API
	app.Post("/v1/plots", srv.createPlot)
	app.Get("/v1/plots", srv.listPlots)
	app.Get("/v1/plots/:plot", srv.getPlot)
	app.Patch("/v1/plots/:plot", srv.updatePlot)
	app.Delete("/v1/plots/:plot", srv.deletePlot)

	// Sweeps API
	app.Post("/v1/plots/:plot/sweeps", srv.createSweep)
	app.Get("/v1/plots/:plot/sweeps", srv.listSweeps)
	app.Get("/v1/plots/:plot/sweeps/:sweep", srv.getSweep)

	// Expressions API
	app.Post("/v1/expressions\\:validate", srv.validateExpression)
	app.Post("/v1/expressions\\:evaluate", srv.evaluateExpression)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// --- Errors ---

// errorResponse writes err as {"error": {"code", "message", "status"}}. The
// HTTP status follows the error's tags.
func errorResponse(c *fiber.Ctx, err error) error {
	pe := types.AsPlotError(err)
	code, status := fiber.StatusInternalServerError, "INTERNAL"
	switch {
	case pe.HasTag(types.TagNotFound):
		code, status = fiber.StatusNotFound, "NOT_FOUND"
	case pe.HasTag(types.TagAlreadyExists):
		code, status = fiber.StatusConflict, "ALREADY_EXISTS"
	case pe.HasTag(types.TagInvalidArgument), pe.HasTag(types.TagParseError):
		code, status = fiber.StatusBadRequest, "INVALID_ARGUMENT"
	}
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": pe.Message,
			"status":  status,
		},
	})
}

func invalidArgument(c *fiber.Ctx, format string, args ...interface{}) error {
	return errorResponse(c, types.NewInvalidArgumentError(fmt.Sprintf(format, args...)))
}

// --- Plot Handlers ---

type plotRequest struct {
	SourceContents string `json:"sourceContents"`
}

var validPlotID = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func (s *Server) createPlot(c *fiber.Ctx) error {
	plotID := c.Query("plotId")
	if plotID == "" {
		return invalidArgument(c, "plotId query parameter is required")
	}
	if !validPlotID.MatchString(plotID) || len(plotID) > 128 {
		return invalidArgument(c, "invalid plotId %q", plotID)
	}

	var req plotRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidArgument(c, "invalid request body: %v", err)
	}
	if req.SourceContents == "" {
		return invalidArgument(c, "sourceContents is required")
	}

	def, err := parser.Parse([]byte(req.SourceContents))
	if err != nil {
		return errorResponse(c, err)
	}

	p, err := s.store.CreatePlot(plotID, req.SourceContents, def)
	if err != nil {
		return errorResponse(c, err)
	}

	s.logger.Info().Str("plot", p.Name).Str("revision", p.RevisionID).Msg("plot created")
	return c.Status(fiber.StatusOK).JSON(plotToJSON(p))
}

func (s *Server) getPlot(c *fiber.Ctx) error {
	p, err := s.store.GetPlot(store.PlotName(c.Params("plot")))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(plotToJSON(p))
}

func (s *Server) listPlots(c *fiber.Ctx) error {
	plots := s.store.ListPlots()

	items := make([]fiber.Map, len(plots))
	for i, p := range plots {
		items[i] = plotToJSON(p)
	}

	return c.JSON(fiber.Map{
		"plots": items,
	})
}

func (s *Server) updatePlot(c *fiber.Ctx) error {
	name := store.PlotName(c.Params("plot"))

	var req plotRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidArgument(c, "invalid request body: %v", err)
	}
	if req.SourceContents == "" {
		return invalidArgument(c, "sourceContents is required")
	}

	def, err := parser.Parse([]byte(req.SourceContents))
	if err != nil {
		return errorResponse(c, err)
	}

	p, err := s.store.UpdatePlot(name, req.SourceContents, def)
	if err != nil {
		return errorResponse(c, err)
	}

	s.logger.Info().Str("plot", p.Name).Str("revision", p.RevisionID).Msg("plot updated")
	return c.JSON(plotToJSON(p))
}

func (s *Server) deletePlot(c *fiber.Ctx) error {
	name := store.PlotName(c.Params("plot"))
	if err := s.store.DeletePlot(name); err != nil {
		return errorResponse(c, err)
	}

	s.logger.Info().Str("plot", name).Msg("plot deleted")
	return c.JSON(fiber.Map{
		"name": name,
		"done": true,
	})
}

// --- Sweep Handlers ---

type sweepRequest struct {
	Range *runtime.Range `json:"range"`
}

// createSweep runs a sweep of the plot synchronously. A body may override
// the plot's range.
func (s *Server) createSweep(c *fiber.Ctx) error {
	plotName := store.PlotName(c.Params("plot"))

	var req sweepRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidArgument(c, "invalid request body: %v", err)
		}
	}

	p, err := s.store.GetPlot(plotName)
	if err != nil {
		return errorResponse(c, err)
	}

	r := p.Definition.Range
	if req.Range != nil {
		r = *req.Range
	}
	if err := r.Validate(); err != nil {
		return errorResponse(c, err)
	}

	sw, err := s.store.CreateSweep(plotName, r)
	if err != nil {
		return errorResponse(c, err)
	}

	eng := runtime.NewEngine(p.Definition.XExpr, p.Definition.YExpr,
		runtime.WithWorkers(s.workers),
		runtime.WithLogger(s.logger.With().Str("sweep", sw.Name).Logger()),
	)
	res, err := eng.Execute(c.UserContext(), r)
	if err != nil {
		_ = s.store.FailSweep(sw.Name, err)
	} else {
		_ = s.store.CompleteSweep(sw.Name, res)
	}

	sw, err = s.store.GetSweep(sw.Name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sweepToJSON(sw, true))
}

func (s *Server) getSweep(c *fiber.Ctx) error {
	name := fmt.Sprintf("%s/sweeps/%s", store.PlotName(c.Params("plot")), c.Params("sweep"))

	sw, err := s.store.GetSweep(name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sweepToJSON(sw, c.Query("view") != "BASIC"))
}

func (s *Server) listSweeps(c *fiber.Ctx) error {
	plotName := store.PlotName(c.Params("plot"))
	if _, err := s.store.GetPlot(plotName); err != nil {
		return errorResponse(c, err)
	}

	sweeps := s.store.ListSweeps(plotName)
	items := make([]fiber.Map, len(sweeps))
	for i, sw := range sweeps {
		items[i] = sweepToJSON(sw, false)
	}

	return c.JSON(fiber.Map{
		"sweeps": items,
	})
}

// --- Expression Handlers ---

type expressionRequest struct {
	Expression string         `json:"expression"`
	Range      *runtime.Range `json:"range"`
}

func (s *Server) validateExpression(c *fiber.Ctx) error {
	var req expressionRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidArgument(c, "invalid request body: %v", err)
	}

	e, err := expr.Compile(req.Expression)
	if err != nil {
		return c.JSON(fiber.Map{
			"valid": false,
			"error": types.AsPlotError(err).ToMap(),
		})
	}
	return c.JSON(fiber.Map{
		"valid":     true,
		"canonical": e.Text(),
	})
}

// evaluateExpression sweeps a single expression and reports its values up
// to the first fault.
func (s *Server) evaluateExpression(c *fiber.Ctx) error {
	var req expressionRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidArgument(c, "invalid request body: %v", err)
	}

	e, err := expr.Compile(req.Expression)
	if err != nil {
		return errorResponse(c, err)
	}

	r := runtime.DefaultRange()
	if req.Range != nil {
		r = *req.Range
	}
	if err := r.Validate(); err != nil {
		return errorResponse(c, err)
	}

	ev := expr.NewEvaluator()
	vals := expr.NewValues(r.Len())
	var fault *expr.FaultError
	for t := r.From; ; t++ {
		v, err := ev.Eval(e, t)
		if err != nil {
			if !errors.As(err, &fault) {
				return errorResponse(c, err)
			}
			break
		}
		vals.Append(v)
		if t == r.To {
			break
		}
	}

	resp := fiber.Map{
		"canonical": e.Text(),
		"range":     r,
		"values":    vals.Slice(),
		"count":     vals.Len(),
		"min":       vals.Min(),
		"max":       vals.Max(),
	}
	if fault != nil {
		resp["fault"] = fiber.Map{
			"kind":      fault.Kind.String(),
			"parameter": fault.Parameter,
			"message":   fault.Error(),
		}
	}
	return c.JSON(resp)
}

// --- Directory Loading ---

// LoadDir loads all .yaml, .yml and .json plot files from dir and deploys
// them as plots. The file name (sans extension) becomes the plot ID. Files
// that cannot be deployed are logged and skipped.
func (s *Server) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading plots directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		base := strings.TrimSuffix(name, ext)
		plotID := strings.ToLower(base)
		log := s.logger.With().Str("file", name).Str("plot", plotID).Logger()

		if plotID != base {
			log.Warn().Msg("lowercased plot ID")
		}
		if !validPlotID.MatchString(plotID) || len(plotID) > 128 {
			log.Warn().Msg("skipping file with invalid plot ID")
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Msg("could not read plot file")
			continue
		}

		def, err := parser.Parse(data)
		if err != nil {
			log.Warn().Err(err).Msg("could not parse plot file")
			continue
		}

		if _, err := s.store.CreatePlot(plotID, string(data), def); err != nil {
			log.Warn().Err(err).Msg("could not deploy plot")
			continue
		}

		loaded++
		log.Info().Msg("loaded plot")
	}

	s.logger.Info().Int("count", loaded).Str("dir", dir).Msg("loaded plots")
	return loaded, nil
}

// --- Helpers ---

func plotToJSON(p *store.Plot) fiber.Map {
	m := fiber.Map{
		"name":           p.Name,
		"description":    p.Description,
		"state":          p.State,
		"revisionId":     p.RevisionID,
		"createTime":     p.CreateTime.Format(time.RFC3339),
		"updateTime":     p.UpdateTime.Format(time.RFC3339),
		"sourceContents": p.SourceCode,
	}
	if def := p.Definition; def != nil {
		m["x"] = def.XExpr.Text()
		m["y"] = def.YExpr.Text()
		m["range"] = def.Range
	}
	return m
}

func sweepToJSON(sw *store.Sweep, withValues bool) fiber.Map {
	result := fiber.Map{
		"name":           sw.Name,
		"state":          sw.State,
		"range":          sw.Range,
		"x":              sw.X,
		"y":              sw.Y,
		"count":          len(sw.XValues),
		"startTime":      sw.StartTime.Format(time.RFC3339),
		"plotRevisionId": sw.PlotRevisionID,
	}

	if withValues {
		result["xValues"] = nonNil(sw.XValues)
		result["yValues"] = nonNil(sw.YValues)
	}
	if len(sw.Faults) > 0 {
		faults := make([]fiber.Map, len(sw.Faults))
		for i, f := range sw.Faults {
			faults[i] = fiber.Map{
				"kind":      f.Kind,
				"axis":      f.Axis,
				"parameter": f.Parameter,
				"message":   f.Message,
			}
		}
		result["faults"] = faults
		result["fault"] = faults[0]
	}
	if sw.Error != "" {
		result["error"] = sw.Error
	}
	if !sw.EndTime.IsZero() {
		result["endTime"] = sw.EndTime.Format(time.RFC3339)
	}

	return result
}

func nonNil(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}
