// Package api serves the read-only query layer consumed by the web
// search page, plus health and metrics endpoints. It reads the dataset
// store through exactly four operations and never writes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/bitmapland/indexer/internal/core/domain"
	"github.com/bitmapland/indexer/internal/infra/store"
)

// DatasetReader is the store's read API.
type DatasetReader interface {
	Lookup(blockNumber uint64) (domain.BlockRecord, error)
	Range(offset, count int) ([]domain.BlockRecord, error)
	Tail(count int) ([]domain.BlockRecord, error)
	Search(substring string) ([]domain.BlockRecord, error)
}

// Status is a point-in-time view of the pipeline for the health
// endpoint.
type Status struct {
	State              string `json:"state"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	TotalProcessed     uint64 `json:"total_processed"`
	LiveHeight         uint64 `json:"live_height"`
	PriorityQueue      int    `json:"priority_queue"`
	BackfillQueue      int    `json:"backfill_queue"`
}

// Server exposes the query API over HTTP.
type Server struct {
	reader DatasetReader
	status func() Status
	server *http.Server
	log    *slog.Logger
}

// NewServer creates the API server. status may be nil if no pipeline
// is attached (read-only deployments).
func NewServer(port int, reader DatasetReader, status func() Status, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		reader: reader,
		status: status,
		log:    log,
	}

	mux.HandleFunc("/api/block/", s.handleLookup)
	mux.HandleFunc("/api/bitmaps", s.handleRange)
	mux.HandleFunc("/api/latest", s.handleTail)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	// The search page is served from a different origin.
	handler := cors.Default().Handler(mux)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routing for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type recordResponse struct {
	BlockNumber   uint64 `json:"block_number"`
	InscriptionID string `json:"inscription_id"`
	Sat           *int64 `json:"sat,omitempty"`
}

func toResponse(rec domain.BlockRecord) recordResponse {
	out := recordResponse{
		BlockNumber:   rec.BlockNumber,
		InscriptionID: rec.InscriptionID,
	}
	if rec.HasSat() {
		sat := rec.Sat
		out.Sat = &sat
	}
	return out
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/block/")
	block, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid block number")
		return
	}

	rec, err := s.reader.Lookup(block)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no bitmap for block")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, toResponse(rec))
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	offset := intQuery(r, "offset", 0)
	count := intQuery(r, "count", 100)

	recs, err := s.reader.Range(offset, count)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeRecords(w, recs)
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	count := intQuery(r, "count", 20)

	recs, err := s.reader.Tail(count)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeRecords(w, recs)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	recs, err := s.reader.Search(q)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeRecords(w, recs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.status != nil {
		resp["pipeline"] = s.status()
	}
	s.writeJSON(w, resp)
}

func (s *Server) writeRecords(w http.ResponseWriter, recs []domain.BlockRecord) {
	out := make([]recordResponse, len(recs))
	for i, rec := range recs {
		out[i] = toResponse(rec)
	}
	s.writeJSON(w, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
