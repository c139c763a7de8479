// Package server wires the inbound HTTP surface: health, preprocess, predict.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Projet-annuel-5A/api-middleware/internal/fanout"
	"github.com/Projet-annuel-5A/api-middleware/internal/logger"
)

type Preprocessor interface {
	Run(ctx context.Context, sessionID, interviewID int64) error
}

type Predictor interface {
	Run(ctx context.Context, sessionID, interviewID int64) (fanout.Result, error)
}

type Server struct {
	pre  Preprocessor
	pred Predictor
}

func New(pre Preprocessor, pred Predictor) *Server {
	return &Server{pre: pre, pred: pred}
}

type processRequest struct {
	SessionID   int64 `json:"session_id"`
	InterviewID int64 `json:"interview_id"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/preprocess", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "preprocess")

		req, ok := decodeRequest(w, r)
		if !ok {
			reqLog.Warn("bad preprocess request")
			return
		}
		reqLog = reqLog.WithField("session_id", req.SessionID).WithField("interview_id", req.InterviewID)
		reqLog.Info("preprocess request received")

		if err := s.pre.Run(r.Context(), req.SessionID, req.InterviewID); err != nil {
			reqLog.WithField("error", err.Error()).Error("preprocess failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "detail": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "predict")

		req, ok := decodeRequest(w, r)
		if !ok {
			reqLog.Warn("bad predict request")
			return
		}
		reqLog = reqLog.WithField("session_id", req.SessionID).WithField("interview_id", req.InterviewID)
		reqLog.Info("predict request received")

		// Partial target failure is recorded in the database, not surfaced
		// here; only a fan-out that could not start maps to a 500.
		if _, err := s.pred.Run(r.Context(), req.SessionID, req.InterviewID); err != nil {
			reqLog.WithField("error", err.Error()).Error("predict failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "detail": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (processRequest, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"status": "error", "detail": "method not allowed"})
		return processRequest{}, false
	}
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "detail": fmt.Sprintf("invalid request body: %v", err)})
		return processRequest{}, false
	}
	if req.SessionID <= 0 || req.InterviewID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "detail": "session_id and interview_id must be positive"})
		return processRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
