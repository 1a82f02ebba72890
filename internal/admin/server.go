package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/driver-agent/internal/lifecycle"
)

// Server is the agent's local introspection surface: health, metrics and
// a snapshot of the lifecycle controller. It binds to localhost in normal
// deployments and carries no driver credentials.
type Server struct {
	ctrl   *lifecycle.Controller
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(ctrl *lifecycle.Controller, logger *slog.Logger) *Server {
	s := &Server{ctrl: ctrl, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.mux.HandleFunc("/ride/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/ride/reject", s.handleReject).Methods("POST")
	s.mux.HandleFunc("/ride/otp", s.handleOTP).Methods("POST")
	s.mux.HandleFunc("/ride/complete", s.handleComplete).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("status encode failed", "err", err)
	}
}

// The ride decision endpoints are the headless stand-in for the driver's
// confirmation surface: a cockpit UI (or curl) drives the lifecycle here.

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.rideOp(w, s.ctrl.AcceptRide())
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.rideOp(w, s.ctrl.RejectRide())
}

func (s *Server) handleOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.rideOp(w, s.ctrl.ConfirmOTP(req.Code))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.rideOp(w, s.ctrl.CompleteRide())
}

func (s *Server) rideOp(w http.ResponseWriter, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
