package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"vitae/internal/api"
	"vitae/internal/config"
	"vitae/internal/logging"
	"vitae/internal/pipeline"
	"vitae/internal/queue"
	"vitae/internal/review"
	"vitae/internal/services"
)

const historyListDefault = 50

type apiServer struct {
	bind    string
	token   string
	logger  *slog.Logger
	manager *pipeline.Manager

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, manager *pipeline.Manager, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:    bind,
		token:   strings.TrimSpace(cfg.Paths.APIToken),
		logger:  logging.NewComponentLogger(logger, "api"),
		manager: manager,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	if collector := manager.Metrics(); collector != nil {
		mux.Handle("GET /metrics", collector.Handler())
	}

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/status", srv.handleStatus)
	protected.HandleFunc("GET /api/queue", srv.handleQueueList)
	protected.HandleFunc("GET /api/queue/{id}", srv.handleQueueItem)
	protected.HandleFunc("POST /api/queue/{id}/cancel", srv.handleCancel)
	protected.HandleFunc("POST /api/items", srv.handleEnqueue)
	protected.HandleFunc("GET /api/reviews", srv.handleReviewList)
	protected.HandleFunc("POST /api/reviews/{id}/decision", srv.handleDecision)
	protected.HandleFunc("GET /api/history/items", srv.handleHistoryItems)
	protected.HandleFunc("GET /api/history/reviews", srv.handleHistoryReviews)
	mux.Handle("/api/", requireToken(srv.token, protected))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.listener = nil
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.manager.Status()

	breakers := make([]api.BreakerStatus, 0, len(status.Breakers))
	for _, snapshot := range status.Breakers {
		breakers = append(breakers, api.FromBreakerSnapshot(snapshot))
	}
	failures := s.manager.Executor().History()
	summaries := make([]api.FailureSummary, 0, len(failures))
	for _, failure := range failures {
		summaries = append(summaries, api.FailureSummary{
			Operation: failure.Operation,
			Attempt:   failure.Attempt,
			Kind:      string(failure.Kind),
			Message:   failure.Message,
			At:        failure.OccurredAt,
		})
	}

	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Running:  status.Running,
		Workers:  status.Workers,
		PID:      os.Getpid(),
		Queue:    api.FromQueueStats(status.Queue),
		Breakers: breakers,
		Reviews:  api.FromReviewStats(status.Review),
		Executor: summaries,
	})
}

func (s *apiServer) handleQueueList(w http.ResponseWriter, r *http.Request) {
	var filter map[queue.Status]bool
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		if filter == nil {
			filter = make(map[queue.Status]bool)
		}
		filter[status] = true
	}

	items := s.manager.Queue().Items()
	summaries := make([]api.ItemSummary, 0, len(items))
	for _, item := range items {
		if filter != nil && !filter[item.Status] {
			continue
		}
		summaries = append(summaries, api.FromItem(item))
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: summaries})
}

func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.manager.Queue().Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "work item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromItem(item))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := s.manager.Queue()
	item, ok := q.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "work item not found")
		return
	}
	if item.Status.IsTerminal() {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("item already %s", item.Status))
		return
	}
	if !q.Cancel(id) {
		s.writeError(w, http.StatusConflict, "item can no longer be cancelled")
		return
	}
	item, _ = q.Get(id)
	s.writeJSON(w, http.StatusOK, api.FromItem(item))
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req api.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SourcePath) == "" {
		s.writeError(w, http.StatusBadRequest, "source_path is required")
		return
	}
	priority := queue.PriorityNormal
	if req.Priority != "" {
		parsed, ok := queue.ParsePriority(req.Priority)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown priority %q", req.Priority))
			return
		}
		priority = parsed
	}

	id, err := s.manager.Enqueue(r.Context(), queue.Payload{SourcePath: req.SourcePath}, priority)
	switch {
	case errors.Is(err, queue.ErrDuplicateItem):
		s.writeError(w, http.StatusConflict, err.Error())
	case services.KindOf(err) == services.KindQueueFull:
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusAccepted, api.EnqueueResponse{ID: id})
	}
}

func (s *apiServer) handleReviewList(w http.ResponseWriter, r *http.Request) {
	gate := s.manager.Gate()
	items := gate.Pending()
	if strings.EqualFold(r.URL.Query().Get("include"), "completed") {
		items = append(items, gate.Completed()...)
	}
	summaries := make([]api.ReviewSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, api.FromReviewItem(item))
	}
	s.writeJSON(w, http.StatusOK, api.ReviewListResponse{Reviews: summaries})
}

func (s *apiServer) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req api.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := review.Status(strings.ToLower(strings.TrimSpace(req.Status)))

	item, err := s.manager.Gate().SubmitDecision(r.PathValue("id"), req.Reviewer, status, req.Notes, req.Score)
	switch {
	case errors.Is(err, review.ErrUnknownReview):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, review.ErrAlreadyDecided):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, review.ErrWrongReviewer):
		s.writeError(w, http.StatusForbidden, err.Error())
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, api.FromReviewItem(item))
	}
}

func (s *apiServer) handleHistoryItems(w http.ResponseWriter, r *http.Request) {
	archive := s.manager.Archive()
	if archive == nil {
		s.writeError(w, http.StatusNotFound, "history archive not configured")
		return
	}
	records, err := archive.Items(r.Context(), listLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *apiServer) handleHistoryReviews(w http.ResponseWriter, r *http.Request) {
	archive := s.manager.Archive()
	if archive == nil {
		s.writeError(w, http.StatusNotFound, "history archive not configured")
		return
	}
	records, err := archive.Reviews(r.Context(), listLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func listLimit(r *http.Request) int {
	if value, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && value > 0 {
		return value
	}
	return historyListDefault
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
