package web

import (
	"context"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/i64-plotter/pkg/parser"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
	"github.com/lemonberrylabs/i64-plotter/pkg/store"
)

func setupTestApp(t *testing.T) (*fiber.App, *store.Store) {
	t.Helper()
	s := store.New()
	h := New(s, WithWorkers(2))
	app := fiber.New()
	h.Register(app)
	return app, s
}

func createPlot(t *testing.T, s *store.Store, id, src string) *store.Plot {
	t.Helper()
	def, err := parser.Parse([]byte(src))
	if err != nil {
		t.Fatalf("failed to parse plot: %v", err)
	}
	p, err := s.CreatePlot(id, src, def)
	if err != nil {
		t.Fatalf("failed to create plot: %v", err)
	}
	return p
}

func runSweep(t *testing.T, s *store.Store, p *store.Plot) *store.Sweep {
	t.Helper()
	sw, err := s.CreateSweep(p.Name, p.Definition.Range)
	if err != nil {
		t.Fatalf("failed to create sweep: %v", err)
	}
	res, err := runtime.NewEngine(p.Definition.XExpr, p.Definition.YExpr).Execute(context.Background(), p.Definition.Range)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if err := s.CompleteSweep(sw.Name, res); err != nil {
		t.Fatalf("failed to complete sweep: %v", err)
	}
	sw, _ = s.GetSweep(sw.Name)
	return sw
}

func get(t *testing.T, app *fiber.App, path string) string {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	return string(body)
}

func TestDashboardEmpty(t *testing.T) {
	app, _ := setupTestApp(t)

	html := get(t, app, "/ui")

	if !strings.Contains(html, "Dashboard") {
		t.Error("expected Dashboard in response")
	}
	if !strings.Contains(html, "I64 Plotter") {
		t.Error("expected brand in response")
	}
	if !strings.Contains(html, "No plots stored") {
		t.Error("expected empty state message")
	}
}

func TestDashboardWithData(t *testing.T) {
	app, s := setupTestApp(t)

	p := createPlot(t, s, "diagonal", "x: t\ny: t\ndescription: the identity\n")
	sw := runSweep(t, s, p)

	html := get(t, app, "/ui")

	if !strings.Contains(html, "diagonal") {
		t.Error("expected plot id in response")
	}
	if !strings.Contains(html, "the identity") {
		t.Error("expected description in response")
	}
	if !strings.Contains(html, "/ui/plots/diagonal/sweeps/"+sw.Name[strings.LastIndex(sw.Name, "/")+1:]) {
		t.Error("expected sweep link in response")
	}
	if !strings.Contains(html, "SUCCEEDED") {
		t.Error("expected sweep state in response")
	}
}

func TestPlotDetailPreview(t *testing.T) {
	app, s := setupTestApp(t)

	createPlot(t, s, "parabola", "x: t\ny: t*t\nrange: [-3, 3]\n")

	html := get(t, app, "/ui/plots/parabola")

	if !strings.Contains(html, "Preview") {
		t.Error("expected preview heading")
	}
	if !strings.Contains(html, "7 points") {
		t.Error("expected point count")
	}
	if !strings.Contains(html, `class="point"`) {
		t.Error("expected rendered points")
	}
	if !strings.Contains(html, "No sweeps yet") {
		t.Error("expected empty sweep list")
	}
}

func TestPlotDetailFaultBanner(t *testing.T) {
	app, s := setupTestApp(t)

	p := createPlot(t, s, "pole", "x: t\ny: 1/(t-2)\nrange: [0, 5]\n")
	sw := runSweep(t, s, p)
	if sw.State != store.SweepFailed {
		t.Fatalf("expected FAILED sweep, got %s", sw.State)
	}

	html := get(t, app, "/ui/plots/pole")

	if !strings.Contains(html, "Latest sweep") {
		t.Error("expected latest sweep heading")
	}
	if !strings.Contains(html, "Floating Point Exception") {
		t.Error("expected division banner")
	}
	if strings.Contains(html, `class="point"`) {
		t.Error("expected no points under a banner")
	}
}

func TestSweepDetail(t *testing.T) {
	app, s := setupTestApp(t)

	p := createPlot(t, s, "shift", "x: t\ny: 1<<t\nrange: [60, 70]\n")
	sw := runSweep(t, s, p)
	id := sw.Name[strings.LastIndex(sw.Name, "/")+1:]

	html := get(t, app, "/ui/plots/shift/sweeps/"+id)

	if !strings.Contains(html, "ShiftFault") {
		t.Error("expected fault kind")
	}
	if !strings.Contains(html, "Undefined Behavior Triggered (shift)") {
		t.Error("expected shift banner")
	}
}

func TestScratch(t *testing.T) {
	app, _ := setupTestApp(t)

	html := get(t, app, "/ui/scratch")
	if !strings.Contains(html, "4097 points") {
		t.Error("expected the default sweep")
	}

	q := url.Values{"x": {"t+"}, "y": {"t"}}
	html = get(t, app, "/ui/scratch?"+q.Encode())
	if !strings.Contains(html, "Parse Error") {
		t.Error("expected parse error banner")
	}

	q = url.Values{"x": {"t"}, "y": {"-t"}, "from": {"-10"}, "to": {"10"}}
	html = get(t, app, "/ui/scratch?"+q.Encode())
	if !strings.Contains(html, "21 points") {
		t.Error("expected 21 points")
	}
}

func TestPlotNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	html := get(t, app, "/ui/plots/nonexistent")

	if !strings.Contains(html, "Not Found") {
		t.Error("expected not found message")
	}
}

func TestRootRedirect(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 302 {
		t.Fatalf("expected 302 redirect, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if loc != "/ui" {
		t.Fatalf("expected redirect to /ui, got %s", loc)
	}
}
