package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/i64-plotter/pkg/store"
)

func setupTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s := store.New()
	return New(s, WithWorkers(4)), s
}

func do(t *testing.T, srv *Server, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return resp.StatusCode, out
}

func createPlot(t *testing.T, srv *Server, id, src string) map[string]interface{} {
	t.Helper()
	code, out := do(t, srv, http.MethodPost, "/v1/plots?plotId="+id, map[string]string{"sourceContents": src})
	require.Equal(t, http.StatusOK, code, "create plot: %v", out)
	return out
}

func errorStatus(t *testing.T, out map[string]interface{}) string {
	t.Helper()
	e, ok := out["error"].(map[string]interface{})
	require.True(t, ok, "expected error object, got %v", out)
	return e["status"].(string)
}

func TestCreateAndGetPlot(t *testing.T) {
	srv, _ := setupTestServer(t)

	out := createPlot(t, srv, "parabola", "x: t\ny: t * t\ndescription: parabola\n")
	assert.Equal(t, "plots/parabola", out["name"])
	assert.Equal(t, "t*t", out["y"])
	assert.Equal(t, "ACTIVE", out["state"])
	assert.Equal(t, "000001-000", out["revisionId"])

	code, got := do(t, srv, http.MethodGet, "/v1/plots/parabola", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "parabola", got["description"])
	rng := got["range"].(map[string]interface{})
	assert.Equal(t, float64(-2048), rng["from"])
	assert.Equal(t, float64(2048), rng["to"])
}

func TestCreatePlotErrors(t *testing.T) {
	srv, _ := setupTestServer(t)
	createPlot(t, srv, "dup", "x: t\ny: t\n")

	tests := []struct {
		name   string
		url    string
		body   interface{}
		code   int
		status string
	}{
		{"missing id", "/v1/plots", map[string]string{"sourceContents": "x: t\ny: t\n"}, 400, "INVALID_ARGUMENT"},
		{"bad id", "/v1/plots?plotId=Bad!", map[string]string{"sourceContents": "x: t\ny: t\n"}, 400, "INVALID_ARGUMENT"},
		{"missing source", "/v1/plots?plotId=a", map[string]string{}, 400, "INVALID_ARGUMENT"},
		{"bad expression", "/v1/plots?plotId=a", map[string]string{"sourceContents": "x: t\ny: 1 2\n"}, 400, "INVALID_ARGUMENT"},
		{"unknown key", "/v1/plots?plotId=a", map[string]string{"sourceContents": "x: t\ny: t\nz: 1\n"}, 400, "INVALID_ARGUMENT"},
		{"exists", "/v1/plots?plotId=dup", map[string]string{"sourceContents": "x: t\ny: t\n"}, 409, "ALREADY_EXISTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := do(t, srv, http.MethodPost, tt.url, tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, errorStatus(t, out))
		})
	}
}

func TestListUpdateDeletePlot(t *testing.T) {
	srv, _ := setupTestServer(t)
	createPlot(t, srv, "one", "x: t\ny: t\n")
	createPlot(t, srv, "two", "x: t\ny: -t\n")

	code, out := do(t, srv, http.MethodGet, "/v1/plots", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["plots"], 2)

	code, out = do(t, srv, http.MethodPatch, "/v1/plots/one", map[string]string{"sourceContents": "x: ~t\ny: t\n"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "~t", out["x"])
	assert.Equal(t, "000003-000", out["revisionId"])

	code, out = do(t, srv, http.MethodPatch, "/v1/plots/missing", map[string]string{"sourceContents": "x: t\ny: t\n"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errorStatus(t, out))

	code, _ = do(t, srv, http.MethodDelete, "/v1/plots/one", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, srv, http.MethodGet, "/v1/plots/one", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSweepSucceeded(t *testing.T) {
	srv, _ := setupTestServer(t)
	createPlot(t, srv, "line", "x: t\ny: t*2\nrange: {from: -2, to: 2}\n")

	code, out := do(t, srv, http.MethodPost, "/v1/plots/line/sweeps", nil)
	require.Equal(t, http.StatusOK, code, "%v", out)
	assert.Equal(t, "SUCCEEDED", out["state"])
	assert.Equal(t, float64(5), out["count"])
	assert.Equal(t, []interface{}{-2.0, -1.0, 0.0, 1.0, 2.0}, out["xValues"])
	assert.Equal(t, []interface{}{-4.0, -2.0, 0.0, 2.0, 4.0}, out["yValues"])
	assert.Nil(t, out["fault"])

	name := out["name"].(string)
	code, got := do(t, srv, http.MethodGet, "/v1/"+name, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, name, got["name"])

	code, list := do(t, srv, http.MethodGet, "/v1/plots/line/sweeps", nil)
	require.Equal(t, http.StatusOK, code)
	sweeps := list["sweeps"].([]interface{})
	require.Len(t, sweeps, 1)
	assert.Nil(t, sweeps[0].(map[string]interface{})["xValues"])
}

func TestSweepFault(t *testing.T) {
	srv, _ := setupTestServer(t)
	createPlot(t, srv, "fpe", "x: 1/(t-7d0)\ny: t\n")

	code, out := do(t, srv, http.MethodPost, "/v1/plots/fpe/sweeps", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FAILED", out["state"])
	assert.Equal(t, float64(4048), out["count"])

	fault := out["fault"].(map[string]interface{})
	assert.Equal(t, "DivisionFault", fault["kind"])
	assert.Equal(t, "x", fault["axis"])
	assert.Equal(t, float64(2000), fault["parameter"])
}

func TestSweepRangeOverride(t *testing.T) {
	srv, _ := setupTestServer(t)
	createPlot(t, srv, "p", "x: t\ny: t\n")

	code, out := do(t, srv, http.MethodPost, "/v1/plots/p/sweeps", map[string]interface{}{
		"range": map[string]int{"from": 3, "to": 5},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), out["count"])

	code, out = do(t, srv, http.MethodPost, "/v1/plots/p/sweeps", map[string]interface{}{
		"range": map[string]int{"from": 5, "to": 3},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(t, out))
}

func TestSweepUnknownPlot(t *testing.T) {
	srv, _ := setupTestServer(t)

	code, _ := do(t, srv, http.MethodPost, "/v1/plots/nope/sweeps", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodGet, "/v1/plots/nope/sweeps", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodGet, "/v1/plots/nope/sweeps/abc", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestValidateExpression(t *testing.T) {
	srv, _ := setupTestServer(t)

	code, out := do(t, srv, http.MethodPost, "/v1/expressions:validate", map[string]string{"expression": "t * -1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, "t*-1", out["canonical"])

	code, out = do(t, srv, http.MethodPost, "/v1/expressions:validate", map[string]string{"expression": "t+"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["valid"])
	e := out["error"].(map[string]interface{})
	assert.Contains(t, e["tags"], "StructurallyInvalid")
}

func TestEvaluateExpression(t *testing.T) {
	srv, _ := setupTestServer(t)

	code, out := do(t, srv, http.MethodPost, "/v1/expressions:evaluate", map[string]interface{}{
		"expression": "t*t",
		"range":      map[string]int{"from": -2, "to": 2},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{4.0, 1.0, 0.0, 1.0, 4.0}, out["values"])
	assert.Equal(t, float64(0), out["min"])
	assert.Equal(t, float64(4), out["max"])
	assert.Nil(t, out["fault"])

	code, out = do(t, srv, http.MethodPost, "/v1/expressions:evaluate", map[string]interface{}{
		"expression": "1<<t",
		"range":      map[string]int{"from": 60, "to": 70},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(4), out["count"])
	fault := out["fault"].(map[string]interface{})
	assert.Equal(t, "ShiftFault", fault["kind"])
	assert.Equal(t, float64(64), fault["parameter"])

	code, out = do(t, srv, http.MethodPost, "/v1/expressions:evaluate", map[string]string{"expression": "(t"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(t, out))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"circle.yaml":  "x: t\ny: -t\n",
		"Upper.yml":    "x: t\ny: t\n",
		"json.json":    `{"x": "t", "y": "t<<1"}`,
		"broken.yaml":  "x: t\ny: (t\n",
		"notes.txt":    "ignored",
		"9invalid.yml": "x: t\ny: t\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	srv, s := setupTestServer(t)
	n, err := srv.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range []string{"circle", "upper", "json"} {
		_, err := s.GetPlot(store.PlotName(id))
		assert.NoError(t, err, id)
	}

	_, err = srv.LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
