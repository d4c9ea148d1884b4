package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"encodefleet/internal/api"
	"encodefleet/internal/config"
	"encodefleet/internal/logging"
	"encodefleet/internal/workflow"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

type apiServer struct {
	bind      string
	logger    *slog.Logger
	svc       *api.Service
	status    func(context.Context) workflow.StatusSummary
	responder api.Responder
	sessions  *sessions
	limiter   *ipLimiter
	handler   http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, svc *api.Service, d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		bind:      strings.TrimSpace(cfg.API.Bind),
		logger:    logging.NewComponentLogger(logger, "http"),
		svc:       svc,
		status:    d.workflow.Status,
		responder: api.Responder{Version: cfg.API.Version, Env: cfg.API.Env},
		sessions:  newSessions(cfg.API),
		limiter:   newIPLimiter(cfg.API.AuthRatePerMinute, cfg.API.AuthBurst),
	}
	s.handler = s.routes()
	return s
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(correlate)
	r.Use(s.accessLog)
	r.Use(s.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, api.NewError(api.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, &api.Error{Code: api.CodeValidation, Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})

	r.Post("/auth", s.handleAuth)
	r.Get("/jobs/preview", s.handlePreview)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/jobs", list(s, api.JobFilterFromQuery, s.svc.ListJobs))
		r.Post("/jobs", s.handleCreateJob)
		r.Put("/jobs", s.handleUpdateJob)
		r.Delete("/jobs", remove(s, api.JobFilterFromQuery, s.svc.DeleteJobs))
		r.Post("/jobs/retry", keysAction(s, s.svc.RetryJobs))

		r.Get("/jobs/outputs", list(s, api.OutputFilterFromQuery, s.svc.ListOutputs))
		r.Delete("/jobs/outputs", remove(s, api.OutputFilterFromQuery, s.svc.DeleteOutputs))
		r.Post("/jobs/outputs/retry", s.handleRetryOutput)

		r.Get("/jobs/notifications", list(s, api.NotificationFilterFromQuery, s.svc.ListNotifications))
		r.Post("/jobs/notifications", s.handleEnqueueNotification)
		r.Delete("/jobs/notifications", remove(s, api.NotificationFilterFromQuery, s.svc.DeleteNotifications))
		r.Post("/jobs/notifications/retry", keysAction(s, s.svc.RetryNotifications))
		r.Post("/jobs/notifications/skip", keysAction(s, s.svc.SkipNotifications))

		r.Get("/instances", list(s, api.InstanceFilterFromQuery, s.svc.ListInstances))
		r.Delete("/instances", remove(s, api.InstanceFilterFromQuery, s.svc.DeleteInstances))
		r.Get("/instances/workers", list(s, infallible(api.WorkerFilterFromQuery), s.svc.ListWorkers))
		r.Delete("/instances/workers", remove(s, infallible(api.WorkerFilterFromQuery), s.svc.DeleteWorkers))

		r.Get("/logs", list(s, api.LogFilterFromQuery, s.svc.ListLogs))
		r.Delete("/logs", remove(s, api.LogFilterFromQuery, s.svc.DeleteLogs))
		r.Get("/stats", list(s, infallible(api.StatFilterFromQuery), s.svc.ListStats))
		r.Delete("/stats", remove(s, infallible(api.StatFilterFromQuery), s.svc.DeleteStats))

		r.Delete("/all", s.handlePurge)
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled; api.bind is empty")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check api.bind and restart the daemon"),
			)
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Debug("api server shutdown", logging.Error(err))
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.fail(w, r, api.NewError(api.CodeRateLimited, "too many authentication attempts; try again later"))
		return
	}
	var req api.AuthRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, expires, err := s.sessions.login(req.Password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Code == api.CodePasswordInvalid {
			logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "authentication failed", "auth_failed",
				logging.String("remote", ip),
				logging.String(logging.FieldErrorHint, "check api.password on the client"),
				logging.String(logging.FieldImpact, "request rejected"),
			)
		}
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusOK, s.responder.OK(api.NewSession(token, expires)))
}

func (s *apiServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.svc.PreviewJob(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusOK, s.responder.OK(preview))
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := s.status(r.Context())
	db, fleet, err := s.svc.Health(r.Context())
	health := api.Health{
		Status:       "ok",
		InstanceKey:  summary.InstanceKey,
		InstanceType: string(summary.InstanceType),
		Running:      summary.Running,
		ActiveJobs:   summary.Active,
		LastError:    summary.LastError,
		Database:     db,
		Fleet:        fleet,
	}
	if health.ActiveJobs == nil {
		health.ActiveJobs = []string{}
	}
	if err != nil {
		if health.Database.Error == "" {
			health.Database.Error = err.Error()
		}
		health.Status = "degraded"
	} else if !db.Integrity {
		health.Status = "degraded"
	}
	s.write(w, http.StatusOK, s.responder.OK(health))
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	job, err := s.svc.CreateJob(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusCreated, s.responder.OK(job))
}

func (s *apiServer) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateJobRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	job, message, err := s.svc.UpdateJob(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusOK, s.responder.Message(message, job))
}

func (s *apiServer) handleRetryOutput(w http.ResponseWriter, r *http.Request) {
	var req api.KeyRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	output, err := s.svc.RetryOutput(r.Context(), req.Key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusOK, s.responder.OK(output))
}

func (s *apiServer) handleEnqueueNotification(w http.ResponseWriter, r *http.Request) {
	var req api.EnqueueNotificationRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.svc.EnqueueNotification(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusCreated, s.responder.OK(n))
}

func (s *apiServer) handlePurge(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Purge(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusOK, s.responder.Message(api.MessagePurged, result))
}

func list[F, T any](s *apiServer, parse func(url.Values) (F, error), fetch func(context.Context, F, api.PageRequest) ([]T, *api.Pagination, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		filter, err := parse(query)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		page, err := api.ParsePageRequest(query)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		items, pagination, err := fetch(r.Context(), filter, page)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.write(w, http.StatusOK, s.responder.Page(items, pagination))
	}
}

func remove[F, R any](s *apiServer, parse func(url.Values) (F, error), del func(context.Context, F) (R, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parse(r.URL.Query())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		result, err := del(r.Context(), filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.write(w, http.StatusOK, s.responder.OK(result))
	}
}

func keysAction[T any](s *apiServer, act func(context.Context, []string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.KeysRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		result, err := act(r.Context(), req.Keys)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.write(w, http.StatusOK, s.responder.OK(result))
	}
}

func infallible[F any](parse func(url.Values) F) func(url.Values) (F, error) {
	return func(values url.Values) (F, error) { return parse(values), nil }
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return api.Validation("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return api.Validation(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return api.Validation("invalid JSON body: " + err.Error())
	}
	return nil
}

func (s *apiServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := api.Classify(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if apiErr.Code == api.CodeInternal {
		logging.ErrorWithContext(logger, "api request failed", "api_request_failed",
			logging.Error(err),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
	} else {
		logger.Debug("api request rejected",
			logging.String("code", string(apiErr.Code)),
			logging.String("message", apiErr.Message),
			logging.String("path", r.URL.Path),
		)
	}
	s.write(w, apiErr.Status, s.responder.Fail(apiErr))
}

func (s *apiServer) write(w http.ResponseWriter, status int, env api.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Debug("failed to write response", logging.Error(err))
	}
}
