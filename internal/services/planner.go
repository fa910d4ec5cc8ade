package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paydays/internal/amqp"
	"paydays/internal/core"
	"paydays/internal/log"
	"paydays/internal/scheduler"
	"paydays/internal/sources"
	"paydays/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoPriorityWriter = errors.New("backend does not accept priority updates")
	ErrNoRunStore       = errors.New("backend does not persist schedule runs")
)

// Publisher delivers schedule events. *amqp.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.Event) error
}

// RunStore persists scheduling runs. *storage.Repository implements it.
type RunStore interface {
	SaveRun(ctx context.Context, run storage.ScheduleRun) error
	LatestRun(ctx context.Context) (storage.ScheduleRun, error)
}

// PlannerConfig holds the defaults applied by the planner.
type PlannerConfig struct {
	// Strategy is used when a call names none.
	Strategy scheduler.StrategyName
	// WritePriorities makes RunScheduled store computed priorities on bills.
	WritePriorities bool
}

// Inputs is one consistent read of the scheduling collections.
type Inputs struct {
	Bills   []core.Bill
	Paydays []core.Payday
	Risks   []core.MonthRisk
}

// RunResult describes what a scheduled run did.
type RunResult struct {
	RunID   string
	Plan    scheduler.Plan
	Updated int
}

// Planner feeds backend data through the scheduling engine. The writer, run
// store and publisher are optional; pass nil when the backend lacks them.
type Planner struct {
	engine    *scheduler.Engine
	source    sources.Source
	writer    sources.PriorityWriter
	runs      RunStore
	publisher Publisher
	cfg       PlannerConfig
	newID     func() string
}

func NewPlanner(
	engine *scheduler.Engine,
	source sources.Source,
	writer sources.PriorityWriter,
	runs RunStore,
	publisher Publisher,
	cfg PlannerConfig,
) *Planner {
	if cfg.Strategy == "" {
		cfg.Strategy = scheduler.BalancedStrategy
	}
	return &Planner{
		engine:    engine,
		source:    source,
		writer:    writer,
		runs:      runs,
		publisher: publisher,
		cfg:       cfg,
		newID:     uuid.NewString,
	}
}

// DefaultStrategy returns the strategy used when a call names none.
func (p *Planner) DefaultStrategy() scheduler.StrategyName {
	return p.cfg.Strategy
}

func (p *Planner) strategy(name scheduler.StrategyName) scheduler.StrategyName {
	if name == "" {
		return p.cfg.Strategy
	}
	return name
}

// LoadInputs reads bills, paydays and month risks concurrently.
func (p *Planner) LoadInputs(ctx context.Context) (Inputs, error) {
	var in Inputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bills, err := p.source.ListBills(gctx)
		if err != nil {
			return fmt.Errorf("list bills: %w", err)
		}
		in.Bills = bills
		return nil
	})
	g.Go(func() error {
		paydays, err := p.source.ListPaydays(gctx)
		if err != nil {
			return fmt.Errorf("list paydays: %w", err)
		}
		in.Paydays = paydays
		return nil
	})
	g.Go(func() error {
		risks, err := p.source.ListMonthRisks(gctx)
		if err != nil {
			return fmt.Errorf("list month risks: %w", err)
		}
		in.Risks = risks
		return nil
	})
	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}

// Plan computes the payment schedule as seen at now.
func (p *Planner) Plan(ctx context.Context, name scheduler.StrategyName, now time.Time) (scheduler.Plan, error) {
	in, err := p.LoadInputs(ctx)
	if err != nil {
		return scheduler.Plan{}, err
	}
	plan, err := p.engine.Plan(p.strategy(name), in.Bills, in.Paydays, in.Risks, now)
	if err != nil {
		return scheduler.Plan{}, fmt.Errorf("plan schedule: %w", err)
	}
	return plan, nil
}

// Rank orders the pending bills by urgency without choosing payment dates.
func (p *Planner) Rank(ctx context.Context, name scheduler.StrategyName, now time.Time) ([]scheduler.PrioritizedBill, []scheduler.RejectedBill, error) {
	in, err := p.LoadInputs(ctx)
	if err != nil {
		return nil, nil, err
	}
	ranked, rejected, err := p.engine.Rank(p.strategy(name), in.Bills, in.Risks, now)
	if err != nil {
		return nil, nil, fmt.Errorf("rank bills: %w", err)
	}
	return ranked, rejected, nil
}

// RefreshPriorities ranks the pending bills and writes each computed priority
// back to the backend.
func (p *Planner) RefreshPriorities(ctx context.Context, name scheduler.StrategyName, now time.Time) ([]core.PriorityUpdate, error) {
	if p.writer == nil {
		return nil, ErrNoPriorityWriter
	}
	ranked, _, err := p.Rank(ctx, name, now)
	if err != nil {
		return nil, err
	}
	updates := scheduler.PriorityUpdates(ranked)
	if len(updates) == 0 {
		return nil, nil
	}
	if err := p.writer.UpdatePriorities(ctx, updates); err != nil {
		return nil, fmt.Errorf("write priorities: %w", err)
	}
	slog.InfoContext(ctx, "Priorities refreshed",
		log.FieldComponent, log.ComponentPlanner,
		log.FieldOperation, log.OpRefresh,
		log.FieldStrategy, p.strategy(name),
		"count", len(updates))
	return updates, nil
}

// RunScheduled is one unattended recompute: plan with the default strategy,
// optionally write priorities back, persist the run and announce it. A failed
// publish is logged and does not fail the run.
func (p *Planner) RunScheduled(ctx context.Context, now time.Time) (RunResult, error) {
	plan, err := p.Plan(ctx, "", now)
	if err != nil {
		return RunResult{}, err
	}
	res := RunResult{RunID: p.newID(), Plan: plan}

	if p.cfg.WritePriorities && p.writer != nil {
		updates := planPriorities(plan)
		if len(updates) > 0 {
			if err := p.writer.UpdatePriorities(ctx, updates); err != nil {
				return res, fmt.Errorf("write priorities: %w", err)
			}
		}
		res.Updated = len(updates)
	}

	if p.runs != nil {
		if err := p.runs.SaveRun(ctx, storage.RunFromPlan(res.RunID, plan, now)); err != nil {
			return res, fmt.Errorf("save run: %w", err)
		}
	}

	p.publish(ctx, amqp.NewScheduleComputedEvent(res.RunID, plan, now))
	if res.Updated > 0 {
		p.publish(ctx, amqp.NewPrioritiesUpdatedEvent(res.RunID, plan.Strategy, plan.Today, res.Updated, now))
	}

	fields := log.NewFields().
		WithComponent(log.ComponentPlanner).
		WithOperation(log.OpPlan).
		WithPlan(plan)
	fields[log.FieldRunID] = res.RunID
	fields["priorities_updated"] = res.Updated
	slog.InfoContext(ctx, "Scheduled run completed", fields.ToSlice()...)
	return res, nil
}

// LatestRun returns the most recently persisted run.
func (p *Planner) LatestRun(ctx context.Context) (storage.ScheduleRun, error) {
	if p.runs == nil {
		return storage.ScheduleRun{}, ErrNoRunStore
	}
	return p.runs.LatestRun(ctx)
}

// Ready reports whether the backend can serve requests. Backends without a
// Ping method are always ready.
func (p *Planner) Ready(ctx context.Context) error {
	if pinger, ok := p.source.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (p *Planner) publish(ctx context.Context, ev *amqp.Event) {
	if p.publisher == nil {
		slog.DebugContext(ctx, "No publisher configured, skipping event", "kind", ev.Kind)
		return
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish schedule event",
			log.FieldComponent, log.ComponentAMQP,
			"kind", ev.Kind,
			log.FieldRunID, ev.RunID,
			log.FieldError, err)
	}
}

// planPriorities collects the priority of every bill the plan scored,
// assigned or not.
func planPriorities(plan scheduler.Plan) []core.PriorityUpdate {
	updates := make([]core.PriorityUpdate, 0, len(plan.Assignments)+len(plan.Unassigned))
	for _, a := range plan.Assignments {
		updates = append(updates, core.PriorityUpdate{BillID: a.Bill.ID, Priority: a.Priority})
	}
	for _, u := range plan.Unassigned {
		updates = append(updates, core.PriorityUpdate{BillID: u.Bill.ID, Priority: u.Priority})
	}
	return updates
}
