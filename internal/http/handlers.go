package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"paydays/internal/calendar"
	"paydays/internal/cli"
	"paydays/internal/core"
	"paydays/internal/log"
	"paydays/internal/scheduler"
	"paydays/internal/services"
)

// request is the strategy and instant a call is evaluated at.
type request struct {
	strategy scheduler.StrategyName
	now      time.Time
}

type rankingResponse struct {
	Strategy scheduler.StrategyName      `json:"strategy"`
	Today    core.Date                   `json:"today"`
	Bills    []scheduler.PrioritizedBill `json:"bills"`
	Rejected []scheduler.RejectedBill    `json:"rejected,omitempty"`
}

type refreshResponse struct {
	Strategy scheduler.StrategyName `json:"strategy"`
	Today    core.Date              `json:"today"`
	Updated  int                    `json:"updated"`
	Updates  []core.PriorityUpdate  `json:"updates"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.planner.Ready(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Backend not ready", log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "backend not ready").Write(w)
		return
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

// parseRequest reads the optional strategy and date query parameters.
func (s *Server) parseRequest(r *http.Request) (request, error) {
	q := r.URL.Query()
	name := s.planner.DefaultStrategy()
	if v := strings.TrimSpace(q.Get("strategy")); v != "" {
		parsed, err := scheduler.ParseStrategyName(v)
		if err != nil {
			return request{}, err
		}
		name = parsed
	}
	now, err := cli.ResolveNow(strings.TrimSpace(q.Get("date")), s.now, s.loc)
	if err != nil {
		return request{}, err
	}
	return request{strategy: name, now: now}, nil
}

// plan returns the cached plan for the request's strategy and day, computing
// it on a miss.
func (s *Server) plan(ctx context.Context, req request) (scheduler.Plan, bool, error) {
	today := core.DateOf(req.now)
	if plan, ok := s.plans.GetPlan(req.strategy, today); ok {
		return plan, true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	plan, err := s.planner.Plan(ctx, req.strategy, req.now)
	if err != nil {
		return scheduler.Plan{}, false, err
	}
	s.plans.SetPlan(plan)
	return plan, false, nil
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	plan, hit, err := s.plan(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "Failed to compute schedule", err)
		return
	}
	NewResponse().Header("X-Cache", cacheStatus(hit)).JSON(plan).Write(w)
}

func (s *Server) handlePriorities(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	ranked, rejected, err := s.planner.Rank(ctx, req.strategy, req.now)
	if err != nil {
		s.writeError(w, r, "Failed to rank bills", err)
		return
	}
	if ranked == nil {
		ranked = []scheduler.PrioritizedBill{}
	}
	NewResponse().JSON(rankingResponse{
		Strategy: req.strategy,
		Today:    core.DateOf(req.now),
		Bills:    ranked,
		Rejected: rejected,
	}).Write(w)
}

// handleRefresh writes fresh priorities back to the backend and drops every
// cached plan, since stored priorities changed.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	updates, err := s.planner.RefreshPriorities(ctx, req.strategy, req.now)
	if err != nil {
		s.writeError(w, r, "Failed to refresh priorities", err)
		return
	}
	s.InvalidatePlans()
	if updates == nil {
		updates = []core.PriorityUpdate{}
	}
	NewResponse().JSON(refreshResponse{
		Strategy: req.strategy,
		Today:    core.DateOf(req.now),
		Updated:  len(updates),
		Updates:  updates,
	}).Write(w)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	plan, hit, err := s.plan(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "Failed to compute schedule", err)
		return
	}
	body, err := calendar.Bytes(plan, req.now)
	if err != nil {
		s.writeError(w, r, "Failed to encode calendar", err)
		return
	}
	NewResponse().
		Header("X-Cache", cacheStatus(hit)).
		Header("Content-Disposition", `attachment; filename="paydays.ics"`).
		Body("text/calendar; charset=utf-8", body).
		Write(w)
}

// writeError maps planner failures onto status codes. Invalid input data is
// reported to the caller; anything else is logged and hidden.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger := log.FromContext(r.Context())
	var invalid *scheduler.InvalidBillError
	switch {
	case errors.Is(err, scheduler.ErrUnknownStrategy):
		BadRequestError(err.Error()).Write(w)
	case errors.As(err, &invalid):
		logger.WarnContext(r.Context(), msg, log.FieldBillID, invalid.BillID, log.FieldError, err)
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, services.ErrNoPriorityWriter):
		ErrorResponse(http.StatusNotImplemented, err.Error()).Write(w)
	case errors.Is(err, context.DeadlineExceeded):
		logger.ErrorContext(r.Context(), msg, log.FieldError, err)
		ErrorResponse(http.StatusGatewayTimeout, "backend timed out").Write(w)
	default:
		logger.ErrorContext(r.Context(), msg, log.FieldError, err)
		InternalServerError("internal error").Write(w)
	}
}

func cacheStatus(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
