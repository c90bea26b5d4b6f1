// Package web provides the embedded web UI of the plotter.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/plot"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
	"github.com/lemonberrylabs/i64-plotter/pkg/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Canvas size of rendered plots, in pixels.
const (
	CanvasWidth  = 520
	CanvasHeight = 764
)

// Handler serves the web UI pages.
type Handler struct {
	store   *store.Store
	logger  zerolog.Logger
	workers int
	funcMap template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Data      interface{}
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithWorkers sets the number of workers used by preview sweeps.
func WithWorkers(n int) Option {
	return func(h *Handler) { h.workers = n }
}

// New creates a new web UI handler.
func New(s *store.Store, opts ...Option) *Handler {
	h := &Handler{
		store:  s,
		logger: zerolog.Nop(),
		funcMap: template.FuncMap{
			"shortName":  shortName,
			"timeAgo":    timeAgo,
			"formatTime": formatTime,
			"duration":   duration,
			"stateClass": stateClass,
			"stateIcon":  stateIcon,
			"truncate":   truncate,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data interface{}) error {
	// Parse templates fresh each time for the page-specific template
	tmpl := template.Must(
		template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page),
	)

	pd := pageData{
		NavActive: navActive,
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pd); err != nil {
		h.logger.Error().Err(err).Str("page", page).Msg("template error")
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/plots/:id", h.plotDetail)
	app.Get("/ui/plots/:id/sweeps/:sweep", h.sweepDetail)
	app.Get("/ui/scratch", h.scratch)

	// Redirect root to UI
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type dashboardContent struct {
	Plots          []*plotView
	RecentSweeps   []*sweepView
	SucceededCount int
	FailedCount    int
	CancelledCount int
}

type plotView struct {
	*store.Plot
	ID         string
	SweepCount int
}

type sweepView struct {
	*store.Sweep
	PlotID  string
	SweepID string
}

type plotDetailContent struct {
	Plot    *store.Plot
	ID      string
	Canvas  *canvas
	Sweeps  []*sweepView
	Preview bool
}

type sweepDetailContent struct {
	Sweep  *sweepView
	Canvas *canvas
}

type scratchContent struct {
	X, Y       string
	From, To   int64
	ParseError string
	Canvas     *canvas
}

type notFoundContent struct {
	Message string
}

// canvas is a rendered plot: either points or a banner.
type canvas struct {
	Width, Height int
	OriginX       int
	OriginY       int
	Points        []point
	Banner        string
	Detail        string
	Count         int

	// Values at the top-left and bottom-right corners.
	TopLeftX, TopLeftY         int64
	BottomRightX, BottomRightY int64
}

type point struct {
	PX, PY int
	X, Y   int64
}

// newCanvas projects the value pairs onto the canvas. A banner replaces
// the points.
func newCanvas(xs, ys *expr.Values, banner, detail string) *canvas {
	vp := plot.NewViewport(CanvasWidth, CanvasHeight, xs, ys)
	ox, oy := vp.Origin()
	cv := &canvas{
		Width:   CanvasWidth,
		Height:  CanvasHeight,
		OriginX: ox,
		OriginY: oy,
		Banner:  banner,
		Detail:  detail,
		Count:   xs.Len(),
	}
	cv.TopLeftX, cv.TopLeftY = vp.Unproject(0, 0)
	cv.BottomRightX, cv.BottomRightY = vp.Unproject(CanvasWidth, CanvasHeight)

	if banner != "" || xs.Len() != ys.Len() {
		return cv
	}
	cv.Points = make([]point, xs.Len())
	for i := range cv.Points {
		x, y := xs.At(i), ys.At(i)
		px, py := vp.Project(x, y)
		cv.Points[i] = point{PX: px, PY: py, X: x, Y: y}
	}
	return cv
}

func sweepCanvas(sw *store.Sweep) *canvas {
	var div, shift bool
	var detail string
	for _, f := range sw.Faults {
		switch f.Kind {
		case expr.DivisionFault.String():
			div = true
		case expr.ShiftFault.String():
			shift = true
		}
		if detail == "" {
			detail = fmt.Sprintf("%s expression: %s", f.Axis, f.Message)
		}
	}
	return newCanvas(expr.ValuesOf(sw.XValues), expr.ValuesOf(sw.YValues), plot.Banner(nil, div, shift), detail)
}

func plotCanvas(p *plot.Plot) *canvas {
	var detail string
	if err := p.ParseErr(); err != nil {
		detail = err.Error()
	} else if err := p.Fault(); err != nil {
		detail = err.Error()
	}
	return newCanvas(p.X(), p.Y(), p.Banner(), detail)
}

// --- Page Handlers ---

func (h *Handler) dashboard(c *fiber.Ctx) error {
	plots := h.store.ListPlots()

	sort.Slice(plots, func(i, j int) bool {
		return plots[i].UpdateTime.After(plots[j].UpdateTime)
	})

	var views []*plotView
	var allSweeps []*sweepView
	var succeeded, failed, cancelled int

	for _, p := range plots {
		sweeps := h.store.ListSweeps(p.Name)
		views = append(views, &plotView{Plot: p, ID: p.ID(), SweepCount: len(sweeps)})
		for _, sw := range sweeps {
			allSweeps = append(allSweeps, newSweepView(sw))
			switch sw.State {
			case store.SweepSucceeded:
				succeeded++
			case store.SweepFailed:
				failed++
			case store.SweepCancelled:
				cancelled++
			}
		}
	}

	sort.Slice(allSweeps, func(i, j int) bool {
		return allSweeps[i].StartTime.After(allSweeps[j].StartTime)
	})

	recent := allSweeps
	if len(recent) > 10 {
		recent = recent[:10]
	}

	return h.render(c, "dashboard.html", "dashboard", dashboardContent{
		Plots:          views,
		RecentSweeps:   recent,
		SucceededCount: succeeded,
		FailedCount:    failed,
		CancelledCount: cancelled,
	})
}

// plotDetail renders the latest sweep of a plot. A plot without sweeps is
// previewed with an unsaved sweep of its definition.
func (h *Handler) plotDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	p, err := h.store.GetPlot(store.PlotName(id))
	if err != nil {
		return h.render(c, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Plot '%s' not found", id),
		})
	}

	sweeps := h.store.ListSweeps(p.Name)
	sort.Slice(sweeps, func(i, j int) bool {
		return sweeps[i].StartTime.After(sweeps[j].StartTime)
	})
	views := make([]*sweepView, len(sweeps))
	for i, sw := range sweeps {
		views[i] = newSweepView(sw)
	}

	content := plotDetailContent{Plot: p, ID: id, Sweeps: views}
	if len(sweeps) > 0 {
		content.Canvas = sweepCanvas(sweeps[0])
	} else {
		pl := plot.New(plot.WithWorkers(h.workers), plot.WithLogger(h.logger))
		pl.SetX(p.Definition.X)
		pl.SetY(p.Definition.Y)
		if _, err := pl.Evaluate(c.UserContext(), p.Definition.Range); err != nil && pl.ParseErr() == nil {
			return c.Status(500).SendString(err.Error())
		}
		content.Canvas = plotCanvas(pl)
		content.Preview = true
	}

	return h.render(c, "plot.html", "plots", content)
}

func (h *Handler) sweepDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	name := fmt.Sprintf("%s/sweeps/%s", store.PlotName(id), c.Params("sweep"))

	sw, err := h.store.GetSweep(name)
	if err != nil {
		return h.render(c, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Sweep '%s' not found", c.Params("sweep")),
		})
	}

	return h.render(c, "sweep.html", "plots", sweepDetailContent{
		Sweep:  newSweepView(sw),
		Canvas: sweepCanvas(sw),
	})
}

// scratch plots the x and y query expressions without storing anything.
func (h *Handler) scratch(c *fiber.Ctx) error {
	r := runtime.DefaultRange()
	r.From = int64(c.QueryInt("from", int(r.From)))
	r.To = int64(c.QueryInt("to", int(r.To)))

	content := scratchContent{
		X:    c.Query("x", plot.DefaultX),
		Y:    c.Query("y", plot.DefaultY),
		From: r.From,
		To:   r.To,
	}

	pl := plot.New(plot.WithWorkers(h.workers), plot.WithLogger(h.logger))
	pl.SetX(content.X)
	pl.SetY(content.Y)
	if err := pl.ParseErr(); err != nil {
		content.ParseError = err.Error()
	}
	if err := r.Validate(); err != nil {
		content.ParseError = err.Error()
		content.Canvas = newCanvas(&expr.Values{}, &expr.Values{}, plot.BannerParseError, err.Error())
		return h.render(c, "scratch.html", "scratch", content)
	}

	if _, err := pl.Evaluate(c.UserContext(), r); err != nil && pl.ParseErr() == nil {
		return c.Status(500).SendString(err.Error())
	}
	content.Canvas = plotCanvas(pl)

	return h.render(c, "scratch.html", "scratch", content)
}

// --- Template Helpers ---

func newSweepView(sw *store.Sweep) *sweepView {
	id := shortName(sw.Name)
	plotID := strings.TrimPrefix(strings.TrimSuffix(sw.Name, "/sweeps/"+id), "plots/")
	return &sweepView{Sweep: sw, PlotID: plotID, SweepID: id}
}

func shortName(fullName string) string {
	parts := strings.Split(fullName, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return fullName
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return "running"
	}
	return formatDuration(end.Sub(start))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func stateClass(state store.SweepState) string {
	switch state {
	case store.SweepActive:
		return "state-active"
	case store.SweepSucceeded:
		return "state-succeeded"
	case store.SweepFailed:
		return "state-failed"
	case store.SweepCancelled:
		return "state-cancelled"
	default:
		return ""
	}
}

func stateIcon(state store.SweepState) template.HTML {
	switch state {
	case store.SweepActive:
		return "&#9654;"
	case store.SweepSucceeded:
		return "&#10003;"
	case store.SweepFailed:
		return "&#10007;"
	case store.SweepCancelled:
		return "&#9632;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
