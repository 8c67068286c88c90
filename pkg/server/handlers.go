package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/indexer"
	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/malbeclabs/nlquery/pkg/pipeline"
	"github.com/malbeclabs/nlquery/pkg/query"
)

type AskRequest struct {
	Question  string                  `json:"question"`
	Rows      []dataset.Row           `json:"rows"`
	Columns   []string                `json:"columns,omitempty"`
	DatasetID string                  `json:"dataset_id,omitempty"`
	History   []pipeline.HistoryEntry `json:"history,omitempty"`
}

type QueryRequest struct {
	Query     string        `json:"query"`
	Rows      []dataset.Row `json:"rows"`
	Columns   []string      `json:"columns,omitempty"`
	DatasetID string        `json:"dataset_id,omitempty"`
}

type QueryResponse struct {
	Columns             []string           `json:"columns"`
	Rows                [][]any            `json:"rows"`
	RowCount            int                `json:"row_count"`
	RowCountBeforeLimit int                `json:"row_count_before_limit"`
	Truncated           bool               `json:"truncated"`
	UsedIndex           bool               `json:"used_index"`
	ElapsedMs           int64              `json:"elapsed_ms"`
	Error               string             `json:"error,omitempty"`
	ErrorKind           pipeline.ErrorKind `json:"error_kind,omitempty"`
}

type ProfileRequest struct {
	Rows      []dataset.Row `json:"rows"`
	Columns   []string      `json:"columns,omitempty"`
	DatasetID string        `json:"dataset_id,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "Question is required", http.StatusBadRequest)
		return
	}

	res := s.cfg.Pipeline.Run(r.Context(), pipeline.Request{
		Question:  req.Question,
		Rows:      req.Rows,
		Columns:   req.Columns,
		DatasetID: req.DatasetID,
		History:   req.History,
	})
	s.log.Debug("server: answered question", "method", res.Method, "success", res.Success, "error_kind", res.ErrorKind)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "Query is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	ds := dataset.New(req.DatasetID, req.Rows, req.Columns)
	res, err := query.Run(ctx, req.Query, ds, query.Options{Index: s.index(ctx, ds)})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, QueryResponse{
			Error:     err.Error(),
			ErrorKind: pipeline.KindOf(err),
			ElapsedMs: elapsed,
		})
		return
	}

	rows := res.Values()
	truncated := res.Truncated
	if len(rows) > s.cfg.MaxRows {
		rows = rows[:s.cfg.MaxRows]
		truncated = true
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Columns:             res.Columns,
		Rows:                rows,
		RowCount:            len(rows),
		RowCountBeforeLimit: res.RowCountBeforeLimit,
		Truncated:           truncated,
		UsedIndex:           res.UsedIndex,
		ElapsedMs:           elapsed,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !s.decode(w, r, &req) {
		return
	}
	ds := dataset.New(req.DatasetID, req.Rows, req.Columns)
	writeJSON(w, http.StatusOK, s.profile(ds))
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	if s.cfg.Indexer != nil {
		s.cfg.Indexer.Invalidate(datasetID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Indexer != nil {
		s.cfg.Indexer.InvalidateAll()
	}
	if s.cfg.Metadata != nil {
		s.cfg.Metadata.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) profile(ds *dataset.Dataset) *metadata.DatasetMetadata {
	if s.cfg.Metadata != nil {
		return s.cfg.Metadata.Get(ds)
	}
	return s.cfg.Analyzer.Analyze(ds)
}

func (s *Server) index(ctx context.Context, ds *dataset.Dataset) *indexer.DatasetIndex {
	if s.cfg.Indexer == nil || ds.Len() == 0 {
		return nil
	}
	idx, err := s.cfg.Indexer.GetOrBuild(ctx, ds)
	if err != nil {
		s.log.Warn("server: index unavailable, scanning rows", "dataset", ds.ID, "error", err)
		return nil
	}
	return idx
}

// decode reads a JSON body with numbers kept as json.Number. It writes the
// error response itself and reports whether the caller should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
