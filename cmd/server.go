package cmd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/modem"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Device Device
	// Token, when set, must be presented as a bearer token.
	Token  string
	Outbox *Outbox
	Inbox  *Inbox
	Hub    *Hub

	once sync.Once
	mux  *http.ServeMux
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(s.routes)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("POST /sms", s.auth(s.handleSMS))
	mux.Handle("GET /registration", s.auth(s.handleRegistration))
	mux.Handle("GET /operator", s.auth(s.handleOperator))
	mux.Handle("GET /operators", s.auth(s.handleOperators))
	mux.Handle("GET /signal", s.auth(s.handleSignal))
	mux.Handle("POST /at", s.auth(s.handleAT))
	mux.Handle("POST /ussd", s.auth(s.handleUSSD))
	if s.Outbox != nil {
		mux.Handle("POST /outbox", s.auth(s.handleEnqueue))
		mux.Handle("GET /outbox/{id}", s.auth(s.handleOutboxStatus))
	}
	if s.Inbox != nil {
		mux.Handle("GET /messages", s.auth(s.handleMessages))
	}
	if s.Hub != nil {
		mux.Handle("GET /events", s.auth(s.Hub.ServeHTTP))
	}
	s.mux = mux
}

func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token != s.Token {
				s.sendError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Debug("Failed to write response", "error", err)
	}
}

// deviceError maps a modem error to a status code.
func (s *Server) deviceError(w http.ResponseWriter, err error) {
	var atErr *at.Error
	switch {
	case errors.Is(err, modem.ErrInvalidRecipient), errors.Is(err, modem.ErrEmptyMessage):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, modem.ErrAlreadyClosed), errors.Is(err, modem.ErrNotInitialized):
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &atErr):
		s.sendError(w, err.Error(), http.StatusBadGateway)
	default:
		s.sendError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (r smsRequest) valid() bool {
	return r.To != "" && r.Message != ""
}

// handleSMS sends a message and waits for the network to accept it.
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	var req smsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !req.valid() {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	refs, err := s.Device.SendSMS(r.Context(), req.To, req.Message)
	if err != nil {
		s.Logger.Error("Failed to send SMS", "error", err, "to", req.To)
		s.deviceError(w, err)
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message))

	type SMSResponse struct {
		References []int `json:"references"`
	}
	s.sendJSON(w, SMSResponse{References: refs}, http.StatusOK)
}

// handleEnqueue queues a message and answers at once.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	id, err := s.Outbox.Enqueue(req)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	st, _ := s.Outbox.Status(id)
	s.sendJSON(w, st, http.StatusAccepted)
}

func (s *Server) handleOutboxStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.Outbox.Status(r.PathValue("id"))
	if !ok {
		s.sendError(w, "unknown id", http.StatusNotFound)
		return
	}
	s.sendJSON(w, st, http.StatusOK)
}

func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := s.Device.Registration(r.Context())
	if err != nil {
		s.deviceError(w, err)
		return
	}
	s.sendJSON(w, reg, http.StatusOK)
}

func (s *Server) handleOperator(w http.ResponseWriter, r *http.Request) {
	op, err := s.Device.Operator(r.Context())
	if err != nil {
		s.deviceError(w, err)
		return
	}
	s.sendJSON(w, op, http.StatusOK)
}

func (s *Server) handleOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := s.Device.Operators(r.Context())
	if err != nil {
		s.deviceError(w, err)
		return
	}
	s.sendJSON(w, ops, http.StatusOK)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	strength, err := s.Device.SignalStrength(r.Context())
	if err != nil {
		s.deviceError(w, err)
		return
	}

	type SignalResponse struct {
		Strength int `json:"strength"`
	}
	s.sendJSON(w, SignalResponse{Strength: strength}, http.StatusOK)
}

type atResponse struct {
	Lines []string `json:"lines"`
	PDU   string   `json:"pdu,omitempty"`
	Final string   `json:"final"`
}

// handleAT runs a raw command. A failing final result is still a 200: the
// caller asked for whatever the modem says.
func (s *Server) handleAT(w http.ResponseWriter, r *http.Request) {
	type ATRequest struct {
		Command string `json:"command"`
	}

	var req ATRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(strings.ToUpper(req.Command), "AT") {
		s.sendError(w, "command must start with AT", http.StatusBadRequest)
		return
	}

	res, err := s.Device.Exec(r.Context(), req.Command)
	var atErr *at.Error
	if err != nil && (!errors.As(err, &atErr) || res == nil) {
		s.deviceError(w, err)
		return
	}

	s.Logger.Info("AT command", "command", req.Command, "final", res.Final)
	s.sendJSON(w, atResponse{Lines: res.Lines, PDU: res.PDU, Final: res.Final}, http.StatusOK)
}

func (s *Server) handleUSSD(w http.ResponseWriter, r *http.Request) {
	type USSDRequest struct {
		Code string `json:"code"`
	}

	var req USSDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		s.sendError(w, "'code' field is required", http.StatusBadRequest)
		return
	}

	if err := s.Device.USSD(r.Context(), req.Code); err != nil {
		s.deviceError(w, err)
		return
	}

	// The answer arrives later as an event.
	w.WriteHeader(http.StatusAccepted)
}

// handleMessages lists received messages, optionally only those after the
// RFC 3339 time in ?since=.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.sendError(w, "invalid 'since': "+err.Error(), http.StatusBadRequest)
			return
		}
		since = t
	}
	s.sendJSON(w, s.Inbox.List(since), http.StatusOK)
}
