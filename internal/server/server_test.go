package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CK6170/gravtie-go/tie"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stepClock struct {
	at   time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.at
	c.at = c.at.Add(c.step)
	return now
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  &stepClock{at: t0.Add(10 * time.Minute), step: 10 * time.Minute},
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, rdr))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func createTie(t *testing.T, h http.Handler, req CreateTieRequest) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/api/ties", req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	return decode[TieResponse](t, rr).ID
}

// thompsonFile covers n seconds from start at a constant gravity.
func thompsonFile(start time.Time, n int, g float64) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Second)
		fmt.Fprintf(&b, "%s,%s,x,%.1f\n", ts.Format("01/02/2006"), ts.Format("15:04:05"), g)
	}
	return b.String()
}

func uploadDGS(t *testing.T, h http.Handler, id, format string, files ...string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if format != "" {
		_ = mw.WriteField("format", format)
	}
	for i, content := range files {
		fw, err := mw.CreateFormFile("file", fmt.Sprintf("dgs%d.dat", i))
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/ties/"+id+"/dgs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func recordHeights(t *testing.T, h http.Handler, id string, meters ...float64) {
	t.Helper()
	for i, m := range meters {
		rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/heights", HeightRequest{Index: i + 1, Meters: &m})
		if rr.Code != http.StatusOK {
			t.Fatalf("height %d: %d %s", i+1, rr.Code, rr.Body.String())
		}
	}
}

func TestBiasFlow(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	id := createTie(t, h, CreateTieRequest{Ship: "R/V Thompson", Personnel: "A. Tech", Station: "Pier"})

	g := 980000.0
	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/station", StationRequest{Gravity: &g}); rr.Code != http.StatusOK {
		t.Fatalf("station: %d", rr.Code)
	}
	recordHeights(t, h, id, 2, 3, 4)

	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/compute/bias", nil); rr.Code != http.StatusConflict {
		t.Fatalf("bias without series: expected 409, got %d", rr.Code)
	}

	// Thompson layout is picked from the ship name.
	rr := uploadDGS(t, h, id, "", thompsonFile(t0, 1800, 978000), thompsonFile(t0.Add(1800*time.Second), 1800, 978000))
	if rr.Code != http.StatusOK {
		t.Fatalf("dgs upload: %d %s", rr.Code, rr.Body.String())
	}
	if up := decode[DGSResponse](t, rr); up.Samples != 3600 || up.Format != "thompson" || len(up.Files) != 2 {
		t.Fatalf("unexpected upload response %+v", up)
	}

	rr = do(t, h, http.MethodPost, "/api/ties/"+id+"/compute/bias", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("bias: %d %s", rr.Code, rr.Body.String())
	}
	res := decode[BiasResponse](t, rr)
	want := g + tie.FAAFactor*-3 - 978000
	if math.Abs(res.Bias-want) > 1e-6 {
		t.Fatalf("bias %v, want %v", res.Bias, want)
	}
	if res.Samples != 1201 || res.Taps != 120 || res.FilterMode != "zerophase" {
		t.Fatalf("unexpected smoothing %+v", res)
	}

	rr = do(t, h, http.MethodGet, "/api/ties/"+id+"/report", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "DgS meter bias (mGal): ") {
		t.Fatalf("report: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, http.MethodGet, "/api/ties/"+id+"/download", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "[SHIP]") {
		t.Fatalf("download: %d %s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "r-v-thompson_") {
		t.Fatalf("unexpected download name %q", cd)
	}

	got := decode[TieResponse](t, do(t, h, http.MethodGet, "/api/ties/"+id, nil))
	if got.Samples != 3600 || got.Tie.Tie.Bias != res.Bias {
		t.Fatalf("tie not updated: %+v", got)
	}
}

func TestBiasCoverageIs422(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	id := createTie(t, h, CreateTieRequest{Ship: "R/V Revelle", Station: "Pier"})
	g := 980000.0
	do(t, h, http.MethodPost, "/api/ties/"+id+"/station", StationRequest{Gravity: &g})
	recordHeights(t, h, id, 2, 3)

	// Series ends before the second height.
	if rr := uploadDGS(t, h, id, "thompson", thompsonFile(t0, 900, 978000)); rr.Code != http.StatusOK {
		t.Fatalf("dgs upload: %d %s", rr.Code, rr.Body.String())
	}
	rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/compute/bias", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestLandTieFlow(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	id := createTie(t, h, CreateTieRequest{Ship: "R/V Ride", Station: "Pier"})
	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/compute/landtie", nil); rr.Code != http.StatusConflict {
		t.Fatalf("land tie disabled: expected 409, got %d", rr.Code)
	}

	lat := 47.6
	rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/landtie", LandTieRequest{Enabled: true, Lat: &lat})
	if rr.Code != http.StatusOK {
		t.Fatalf("landtie: %d %s", rr.Code, rr.Body.String())
	}
	// No calibration table yet.
	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/compute/landtie", nil); rr.Code != http.StatusConflict {
		t.Fatalf("no table: expected 409, got %d", rr.Code)
	}
	// Meter lookup without a database.
	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/landtie", LandTieRequest{Enabled: true, Meter: "G-1"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("meter without db: expected 400, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/counts", CountRequest{Occupation: "A1", Index: 4, Counts: 1}); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad index: expected 400, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/counts", CountRequest{Occupation: "Z", Index: 1, Counts: 1}); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad occupation: expected 400, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/api/ties/"+id+"/counts", CountRequest{Occupation: "b", Index: 2, Counts: -2400})
	if rr.Code != http.StatusOK {
		t.Fatalf("count: %d %s", rr.Code, rr.Body.String())
	}
	got := decode[TieResponse](t, do(t, h, http.MethodGet, "/api/ties/"+id, nil))
	if got.Tie.LandMeter.B2.Counts != 2400 || got.Tie.LandMeter.ShipLat != 47.6 {
		t.Fatalf("unexpected land meter %+v", got.Tie.LandMeter)
	}
}

func TestNotFoundAndBadInput(t *testing.T) {
	h := newTestServer(t).Handler()
	if rr := do(t, h, http.MethodGet, "/api/ties/not-a-uuid", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/ties", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rr.Code)
	}
	id := createTie(t, h, CreateTieRequest{Ship: "Launch"})
	if rr := uploadDGS(t, h, id, "", "x"); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown ship layout: expected 400, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/heights", HeightRequest{Index: 1, Text: "7ft 8in"}); rr.Code != http.StatusOK {
		t.Fatalf("imperial height: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/api/ties/"+id, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/ties/"+id, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("deleted tie still found: %d", rr.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t).Handler()
	createTie(t, h, CreateTieRequest{})
	health := decode[HealthResponse](t, do(t, h, http.MethodGet, "/api/health", nil))
	if !health.OK || health.Ties != 1 {
		t.Fatalf("unexpected health %+v", health)
	}
	rr := do(t, h, http.MethodGet, "/metrics", nil)
	body := rr.Body.String()
	if rr.Code != http.StatusOK || !strings.Contains(body, `gravtie_http_requests_total{route="POST /api/ties",status="201"} 1`) {
		t.Fatalf("metrics missing request counter:\n%s", body)
	}
	if !strings.Contains(body, "gravtie_open_ties 1") {
		t.Fatalf("metrics missing open ties gauge")
	}
}

func TestWebSocketReceivesBias(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	h := s.Handler()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/tie", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	id := createTie(t, h, CreateTieRequest{Ship: "R/V Thompson", Station: "Pier"})
	g := 980000.0
	do(t, h, http.MethodPost, "/api/ties/"+id+"/station", StationRequest{Gravity: &g})
	recordHeights(t, h, id, 2)
	uploadDGS(t, h, id, "", thompsonFile(t0, 1800, 978000))
	if rr := do(t, h, http.MethodPost, "/api/ties/"+id+"/compute/bias", nil); rr.Code != http.StatusOK {
		t.Fatalf("bias: %d %s", rr.Code, rr.Body.String())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type  string       `json:"type"`
		TieID string       `json:"tieId"`
		Data  BiasResponse `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "bias" || msg.TieID != id || msg.Data.Samples != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}
}
