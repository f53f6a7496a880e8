// Package server exposes subscriptions over HTTP next to health and metrics.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"github.com/gorilla/mux"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/notifier"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	readHeaderTimeout = time.Second * 5
	maxBodyBytes      = 1 << 16
	// API subscribers live in their own namespace so the API can never touch
	// subscribers created by another host.
	subscriberPrefix = "api:"
)

type Commands interface {
	Subscribe(ctx context.Context, subscriberId, target, service, username string) (db.Streamer, error)
	Unsubscribe(ctx context.Context, subscriberId, service, username string) (bool, error)
	List(ctx context.Context, subscriberId, service string) ([]db.Streamer, error)
	Forget(ctx context.Context, subscriberId string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Routes tells whether notifications to a target scheme can be delivered.
type Routes interface {
	Supports(scheme string) bool
}

type Server struct {
	commands Commands
	store    Pinger
	routes   Routes
	token    string
	log      zerolog.Logger
	router   *mux.Router
}

// New builds the API. Every subscription route requires "Authorization: Bearer
// <token>"; health and metrics stay open.
func New(commands Commands, store Pinger, routes Routes, token string, log zerolog.Logger) *Server {
	s := &Server{
		commands: commands,
		store:    store,
		routes:   routes,
		token:    token,
		log:      log.With().Str("component", "http").Logger(),
		router:   mux.NewRouter(),
	}
	s.router.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.health)
	s.router.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.Handler())
	api := s.router.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.Methods(http.MethodPost).Path("/subscriptions").HandlerFunc(s.subscribe)
	api.Methods(http.MethodGet).Path("/subscribers/{id}/subscriptions").HandlerFunc(s.list)
	api.Methods(http.MethodDelete).Path("/subscribers/{id}/subscriptions/{service}/{username}").HandlerFunc(s.unsubscribe)
	api.Methods(http.MethodDelete).Path("/subscribers/{id}").HandlerFunc(s.forget)
	return s
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, address string) error {
	httpServer := &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errs := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", address).Msg("http server started")
		errs <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "unable to shut down http server")
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

type subscribeRequest struct {
	SubscriberId string `json:"subscriber_id"`
	Target       string `json:"target"`
	Service      string `json:"service"`
	Username     string `json:"username"`
}

type streamerResponse struct {
	Id       string `json:"id"`
	Service  string `json:"service"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

func toResponse(streamer db.Streamer) streamerResponse {
	return streamerResponse{
		Id:       streamer.Id.String(),
		Service:  streamer.Service,
		Username: streamer.Username,
		IsOnline: streamer.IsOnline,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("store is unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var request subscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(request.SubscriberId) == "" {
		writeError(w, http.StatusBadRequest, "subscriber_id is required")
		return
	}
	if err := s.validateTarget(request.Target); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	streamer, err := s.commands.Subscribe(r.Context(), subscriberId(request.SubscriberId), request.Target, request.Service, request.Username)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(streamer))
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	id := subscriberId(mux.Vars(r)["id"])
	streamers, err := s.commands.List(r.Context(), id, r.URL.Query().Get("service"))
	if err != nil {
		s.fail(w, err)
		return
	}
	response := make([]streamerResponse, 0, len(streamers))
	for _, streamer := range streamers {
		response = append(response, toResponse(streamer))
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	removed, err := s.commands.Unsubscribe(r.Context(), subscriberId(vars["id"]), vars["service"], vars["username"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) forget(w http.ResponseWriter, r *http.Request) {
	if err := s.commands.Forget(r.Context(), subscriberId(mux.Vars(r)["id"])); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, streams.ErrUnknownService), errors.Is(err, notifier.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, streams.ErrStreamerNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrAlreadySubscribed):
		return http.StatusConflict
	case errors.Is(err, streams.ErrInvalidUsername):
		return http.StatusUnprocessableEntity
	case errors.Is(err, streams.ErrFetchFailed), errors.Is(err, streams.ErrUnexpectedAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func subscriberId(id string) string {
	return subscriberPrefix + id
}

// validateTarget only accepts webhook URLs a registered sink can deliver to.
func (s *Server) validateTarget(target string) error {
	parsed, err := url.Parse(target)
	if err != nil {
		return errors.Wrapf(notifier.ErrInvalidTarget, "%q: %v", target, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Wrapf(notifier.ErrInvalidTarget, "unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.Wrapf(notifier.ErrInvalidTarget, "%q has no host", target)
	}
	if !s.routes.Supports(scheme) {
		return errors.Wrapf(notifier.ErrInvalidTarget, "no sink for scheme %q", scheme)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
