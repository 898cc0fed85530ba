package debugapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/persistence/chatstore"
)

// FlagsUpdate is the PUT body of the flags route. Absent fields are kept.
type FlagsUpdate struct {
	InjectTools *bool `json:"inject_tools,omitempty"`
	Verbose     *bool `json:"verbose,omitempty"`
}

// NewHandler mounts the debug routes and /metrics.
func NewHandler(svc *Service) http.Handler {
	mux := http.NewServeMux()
	Register(mux, svc)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func Register(mux *http.ServeMux, svc *Service) {
	logger := log.With().Str("component", "debugapi").Logger()

	mux.HandleFunc("GET /api/debug/conversations", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		items, err := svc.List(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	})

	mux.HandleFunc("GET /api/debug/conversations/{sid}", func(w http.ResponseWriter, r *http.Request) {
		conv, err := svc.Load(r.Context(), r.PathValue("sid"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Inspect(conv))
	})

	mux.HandleFunc("POST /api/debug/conversations/{sid}/split", func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.Split(r.Context(), r.PathValue("sid"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	mux.HandleFunc("POST /api/debug/conversations/{sid}/dry-run", func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.DryRunSession(r.Context(), r.PathValue("sid"))
		if err != nil {
			writeError(w, err)
			return
		}
		if rep.Result != nil && rep.Result.Empty {
			logger.Warn().Str("session_id", rep.SessionID).Msg("dry run produced an empty summary")
		}
		writeJSON(w, http.StatusOK, rep)
	})

	mux.HandleFunc("POST /api/debug/conversations/{sid}/compact", func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.Compact(r.Context(), r.PathValue("sid"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	mux.HandleFunc("DELETE /api/debug/conversations/{sid}/summaries", func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.ClearSummaries(r.Context(), r.PathValue("sid"), r.URL.Query().Get("round_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
	})

	mux.HandleFunc("GET /api/debug/summarization/flags", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Flags().Snapshot())
	})

	mux.HandleFunc("PUT /api/debug/summarization/flags", func(w http.ResponseWriter, r *http.Request) {
		var upd FlagsUpdate
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&upd); err != nil {
			http.Error(w, "invalid flags body: "+err.Error(), http.StatusBadRequest)
			return
		}
		flags := svc.Flags()
		if upd.InjectTools != nil {
			flags.SetInjectTools(*upd.InjectTools)
		}
		if upd.Verbose != nil {
			flags.SetVerbose(*upd.Verbose)
		}
		snap := flags.Snapshot()
		logger.Info().Bool("inject_tools", snap.InjectTools).Bool("verbose", snap.Verbose).Msg("summarization debug flags updated")
		writeJSON(w, http.StatusOK, snap)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("debugapi: write response")
	}
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var re *compaction.RenderError
	var me *compaction.ModelError
	switch {
	case errors.Is(err, chatstore.ErrNotFound), errors.Is(err, compaction.ErrUnknownRound):
		return http.StatusNotFound
	case errors.Is(err, compaction.ErrNothingToSummarize), errors.Is(err, compaction.ErrBoundaryCompacted):
		return http.StatusConflict
	case errors.Is(err, ErrSummarizerUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &re):
		return http.StatusUnprocessableEntity
	case errors.As(err, &me):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("debugapi request failed")
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
