package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/CK6170/gravtie-go/database"
	"github.com/CK6170/gravtie-go/dgs"
	"github.com/CK6170/gravtie-go/models"
	"github.com/CK6170/gravtie-go/report"
	"github.com/CK6170/gravtie-go/session"
	"github.com/CK6170/gravtie-go/tie"
)

type Options struct {
	Logger     *slog.Logger
	DB         *database.DB
	FilterMode tie.FilterMode
	FAAFactor  float64
	// Clock stamps readings; nil means the system clock.
	Clock session.TimeSource
}

type Server struct {
	mux     *http.ServeMux
	log     *slog.Logger
	opts    Options
	store   *TieStore
	hub     *WSHub
	metrics *Metrics
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FAAFactor == 0 {
		opts.FAAFactor = tie.FAAFactor
	}
	s := &Server{
		mux:     http.NewServeMux(),
		log:     opts.Logger,
		opts:    opts,
		store:   NewTieStore(),
		metrics: NewMetrics(),
	}
	s.hub = NewWSHub(s.log, s.metrics.SetWSClients)

	s.route("GET /api/health", s.handleHealth)
	s.route("POST /api/ties", s.handleCreateTie)
	s.route("GET /api/ties/{id}", s.withTie(s.handleGetTie))
	s.route("DELETE /api/ties/{id}", s.handleDeleteTie)
	s.route("POST /api/ties/{id}/heights", s.withTie(s.handleHeight))
	s.route("POST /api/ties/{id}/counts", s.withTie(s.handleCount))
	s.route("POST /api/ties/{id}/station", s.withTie(s.handleStation))
	s.route("POST /api/ties/{id}/landtie", s.withTie(s.handleLandTie))
	s.route("POST /api/ties/{id}/dgs", s.withTie(s.handleDGS))
	s.route("POST /api/ties/{id}/compute/landtie", s.withTie(s.handleComputeLandTie))
	s.route("POST /api/ties/{id}/compute/bias", s.withTie(s.handleComputeBias))
	s.route("GET /api/ties/{id}/report", s.withTie(s.handleReport))
	s.route("GET /api/ties/{id}/download", s.withTie(s.handleDownload))

	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /ws/tie", s.handleWSTie)

	return s
}

func (s *Server) route(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.metrics.WrapHandler(pattern, h))
}

// Handler returns the API with panic recovery applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.log.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v)
				s.writeJSON(w, http.StatusInternalServerError, APIError{Error: "internal error"})
			}
		}()
		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), APIError{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tie.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, tie.ErrInsufficientCoverage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrIndex),
		errors.Is(err, session.ErrNoDatabase):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) newSession(t models.Tie) *session.Session {
	opts := []session.Option{
		session.WithFilterMode(s.opts.FilterMode),
		session.WithFAAFactor(s.opts.FAAFactor),
	}
	if s.opts.DB != nil {
		opts = append(opts, session.WithDatabase(s.opts.DB))
	}
	if s.opts.Clock != nil {
		opts = append(opts, session.WithClock(s.opts.Clock))
	}
	return session.New(t, opts...)
}

func (s *Server) withTie(h func(http.ResponseWriter, *http.Request, *TieRecord)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.store.Get(r.PathValue("id"))
		if !ok {
			s.writeJSON(w, http.StatusNotFound, APIError{Error: "tie not found"})
			return
		}
		h(w, r, rec)
	}
}

func (s *Server) tieResponse(rec *TieRecord) TieResponse {
	return TieResponse{
		ID:      rec.ID,
		Created: rec.Created,
		Samples: rec.Sess.SeriesLen(),
		Tie:     rec.Sess.Tie(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{OK: true, Timestamp: time.Now(), Ties: s.store.Len()})
}

func (s *Server) handleCreateTie(w http.ResponseWriter, r *http.Request) {
	var req CreateTieRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
		return
	}
	sess := s.newSession(models.NewTie())
	if req.Ship != "" {
		sess.SetShip(req.Ship, req.AltShip)
	}
	if req.Personnel != "" {
		sess.SetPersonnel(req.Personnel)
	}
	if req.Station != "" {
		sess.SetStation(req.Station, req.AltStation)
	}
	sess.SetLandTie(req.LandTie)

	rec := s.store.Put(sess)
	s.metrics.SetOpenTies(s.store.Len())
	s.log.Info("tie created", "id", rec.ID, "ship", req.Ship, "station", req.Station)
	s.writeJSON(w, http.StatusCreated, s.tieResponse(rec))
}

func (s *Server) handleGetTie(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	s.writeJSON(w, http.StatusOK, s.tieResponse(rec))
}

func (s *Server) handleDeleteTie(w http.ResponseWriter, r *http.Request) {
	if !s.store.Delete(r.PathValue("id")) {
		s.writeJSON(w, http.StatusNotFound, APIError{Error: "tie not found"})
		return
	}
	s.metrics.SetOpenTies(s.store.Len())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	var req HeightRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
		return
	}
	i := req.Index - 1
	if req.Reset {
		if err := rec.Sess.ResetHeight(i); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.tieResponse(rec))
		return
	}
	var meters float64
	switch {
	case req.Meters != nil:
		meters = *req.Meters
	case req.Text != "":
		v, err := session.ParseHeight(req.Text)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
			return
		}
		meters = v
	default:
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: "meters or text required"})
		return
	}
	h, err := rec.Sess.RecordHeight(i, meters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("height recorded", "id", rec.ID, "index", req.Index, "meters", h.Meters, "time", h.Time)
	s.writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	var req CountRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
		return
	}
	g, err := tie.ParseOccupationLabel(req.Occupation)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
		return
	}
	i := req.Index - 1
	if req.Reset {
		if err := rec.Sess.ResetCount(g, i); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.tieResponse(rec))
		return
	}
	reading, err := rec.Sess.RecordCount(g, i, req.Counts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("count recorded", "id", rec.ID, "occupation", g, "index", req.Index, "counts", reading.Counts)
	s.writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	var req StationRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
		return
	}
	if req.Name != "" {
		rec.Sess.SetStation(req.Name, req.AltName)
	}
	if req.Gravity != nil {
		rec.Sess.SetStationGravity(*req.Gravity)
	}
	s.writeJSON(w, http.StatusOK, rec.Sess.Tie().Station)
}

func (s *Server) handleLandTie(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	var req LandTieRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
		return
	}
	sess := rec.Sess
	sess.SetLandTie(req.Enabled)
	switch {
	case req.CalFile != "":
		if err := sess.LoadCalibration(req.CalFile); err != nil {
			s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
			return
		}
		sess.SetMeterName(req.Meter, req.AltMeter)
	case req.Meter != "" && req.Meter != models.Other:
		if err := sess.SelectMeter(req.Meter); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.Lon != nil || req.Lat != nil || req.Elevation != nil || req.MeterTemp != nil {
		lm := sess.Tie().LandMeter
		sess.SetCoordinates(
			valueOr(req.Lon, lm.ShipLon),
			valueOr(req.Lat, lm.ShipLat),
			valueOr(req.Elevation, lm.ShipElev),
			valueOr(req.MeterTemp, lm.MeterTemp),
		)
	}
	s.writeJSON(w, http.StatusOK, sess.Tie().LandMeter)
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func (s *Server) handleDGS(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: "no file uploaded"})
		return
	}
	var format dgs.Format
	if name := strings.TrimSpace(r.FormValue("format")); name != "" {
		format, err = dgs.ParseFormat(name)
	} else {
		format, err = dgs.FormatForShip(rec.Sess.Tie().Ship.Name)
	}
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
		return
	}

	var (
		series tie.Series
		names  []string
	)
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, APIError{Error: err.Error()})
			return
		}
		part, err := dgs.Read(f, format)
		f.Close()
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, APIError{Error: fmt.Sprintf("%s: %v", fh.Filename, err)})
			return
		}
		series = append(series, part...)
		names = append(names, filepath.Base(fh.Filename))
	}
	rec.Sess.LoadSeries(series, format, names)
	s.log.Info("dgs series loaded", "id", rec.ID, "format", format, "files", len(names), "samples", len(series))
	s.writeJSON(w, http.StatusOK, DGSResponse{Format: format.String(), Files: names, Samples: len(series)})
}

func (s *Server) handleComputeLandTie(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	start := time.Now()
	res, err := rec.Sess.ComputeLandTie()
	s.metrics.Computation("landtie", outcome(err), time.Since(start))
	if err != nil {
		s.log.Warn("land tie failed", "id", rec.ID, "err", err)
		s.hub.Broadcast(WSMessage{Type: "error", TieID: rec.ID, Data: APIError{Error: err.Error()}})
		s.writeError(w, err)
		return
	}
	out := landTieResponse(res)
	out.Uncovered = rec.Sess.UncoveredCounts()
	if len(out.Uncovered) > 0 {
		s.log.Warn("counts outside calibration table", "id", rec.ID, "readings", out.Uncovered)
	}
	s.log.Info("land tie computed", "id", rec.ID, "gravity", res.AbsoluteGravity, "drift", res.Drift)
	s.hub.Broadcast(WSMessage{Type: "landtie", TieID: rec.ID, Data: out})
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleComputeBias(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	start := time.Now()
	res, err := rec.Sess.ComputeBias()
	s.metrics.Computation("bias", outcome(err), time.Since(start))
	if err != nil {
		s.log.Warn("bias failed", "id", rec.ID, "err", err)
		s.hub.Broadcast(WSMessage{Type: "error", TieID: rec.ID, Data: APIError{Error: err.Error()}})
		s.writeError(w, err)
		return
	}
	out := biasResponse(res, rec.Sess.FilterMode())
	s.log.Info("bias computed", "id", rec.ID, "bias", res.Bias, "taps", res.Smoothing.Taps, "samples", res.Smoothing.Samples)
	s.hub.Broadcast(WSMessage{Type: "bias", TieID: rec.ID, Data: out})
	s.writeJSON(w, http.StatusOK, out)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tie.ErrNotReady):
		return "not_ready"
	case errors.Is(err, tie.ErrInsufficientCoverage):
		return "coverage"
	}
	return "error"
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	var buf bytes.Buffer
	t := rec.Sess.Tie()
	if err := report.Write(&buf, t, rec.Sess.FAAFactor()); err != nil {
		s.writeError(w, err)
		return
	}
	name := filepath.Base(session.DefaultReportPath(".", t.Ship.DisplayName(), rec.Created))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, rec *TieRecord) {
	var buf bytes.Buffer
	t := rec.Sess.Tie()
	if err := session.EncodeTie(&buf, t); err != nil {
		s.writeError(w, err)
		return
	}
	name := filepath.Base(session.DefaultTiePath(".", t.Ship.DisplayName(), rec.Created))
	w.Header().Set("Content-Type", "application/toml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
