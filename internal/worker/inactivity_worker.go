// Package worker hosts the background sweeps that drive time-based ticket
// transitions.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/config"
	"github.com/lerndmina/Heimdall-sub004/internal/events"
	"github.com/lerndmina/Heimdall-sub004/internal/observability"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	"github.com/lerndmina/Heimdall-sub004/internal/repository"
	"github.com/lerndmina/Heimdall-sub004/internal/service"
)

// InactivityWorker promotes idle open tickets to warned and then auto-closed
// on a fixed interval.
type InactivityWorker struct {
	tickets    repository.TicketRepository
	lifecycle  *service.LifecycleService
	client     platform.Client
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.ModmailConfig
}

// InactivityDependencies bundles collaborators for the worker.
type InactivityDependencies struct {
	TicketRepo repository.TicketRepository
	Lifecycle  *service.LifecycleService
	Client     platform.Client
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.ModmailConfig
}

// NewInactivityWorker constructs the worker.
func NewInactivityWorker(deps InactivityDependencies) *InactivityWorker {
	return &InactivityWorker{
		tickets:    deps.TicketRepo,
		lifecycle:  deps.Lifecycle,
		client:     deps.Client,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// Run executes sweeps until the context is cancelled.
func (w *InactivityWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	w.logger.Info("inactivity worker started",
		zap.Duration("interval", w.cfg.SweepInterval),
		zap.Duration("warn_after", w.cfg.InactivityWarning),
		zap.Duration("close_after", w.cfg.InactivityAutoClose))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inactivity worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one pass: warnings first, then inactivity closes, then
// scheduled closes from resolved tickets. Tickets with auto-close disabled
// never appear in the candidate queries.
func (w *InactivityWorker) Sweep(ctx context.Context) {
	now := time.Now()
	w.sweepWarnings(ctx, now)
	w.sweepAutoClose(ctx, now)
	w.sweepScheduledClose(ctx, now)
}

func (w *InactivityWorker) sweepWarnings(ctx context.Context, now time.Time) {
	candidates, err := w.tickets.ListWarningCandidates(ctx, now.Add(-w.cfg.InactivityWarning))
	if err != nil {
		w.logger.Error("warning sweep query failed", zap.Error(err))
		return
	}
	for i := range candidates {
		ticket := &candidates[i]
		notice := fmt.Sprintf(
			"Your ticket #%d has been quiet for a while. Reply to keep it open, or it will close automatically after further inactivity.",
			ticket.TicketNumber)
		if channelID, err := w.client.CreateDMChannel(ctx, ticket.UserID); err == nil {
			_, _ = w.client.SendMessage(ctx, channelID, platform.SendRequest{Content: notice})
		}
		_, _ = w.client.SendMessage(ctx, ticket.SharedThreadID, platform.SendRequest{
			Content: fmt.Sprintf("Inactivity warning sent to the user (idle since %s).",
				ticket.LastUserActivityAt.Format(time.RFC1123)),
		})

		sentAt := now
		ticket.InactivityWarningSentAt = &sentAt
		if err := w.tickets.Update(ctx, ticket); err != nil {
			w.logger.Error("recording inactivity warning failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		w.metrics.Inc(observability.CounterInactivityWarnings)
		w.publish(ctx, events.Event{
			Type:     events.EventInactivityWarning,
			GuildID:  ticket.GuildID,
			TicketID: ticket.ID,
			ActorID:  service.SystemActorID,
			Payload:  events.InactivityWarningPayload{IdleSince: ticket.LastUserActivityAt},
		})
	}
}

func (w *InactivityWorker) sweepAutoClose(ctx context.Context, now time.Time) {
	candidates, err := w.tickets.ListAutoCloseCandidates(ctx, now.Add(-w.cfg.InactivityAutoClose))
	if err != nil {
		w.logger.Error("auto-close sweep query failed", zap.Error(err))
		return
	}
	for i := range candidates {
		w.autoClose(ctx, candidates[i].ID, "automatic inactivity closure")
	}
}

func (w *InactivityWorker) sweepScheduledClose(ctx context.Context, now time.Time) {
	candidates, err := w.tickets.ListScheduledAutoClose(ctx, now)
	if err != nil {
		w.logger.Error("scheduled close sweep query failed", zap.Error(err))
		return
	}
	for i := range candidates {
		w.autoClose(ctx, candidates[i].ID, "resolved with no further activity")
	}
}

// autoClose delegates to the lifecycle's idempotent Close, so a ticket caught
// by both queries, or racing a manual close, is never closed twice.
func (w *InactivityWorker) autoClose(ctx context.Context, ticketID, reason string) {
	ticket, err := w.lifecycle.Close(ctx, ticketID, service.SystemActorID, reason)
	if err != nil {
		w.logger.Error("auto close failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	w.metrics.Inc(observability.CounterTicketsAutoClosed)
	w.publish(ctx, events.Event{
		Type:     events.EventTicketAutoClosed,
		GuildID:  ticket.GuildID,
		TicketID: ticket.ID,
		ActorID:  service.SystemActorID,
		Payload:  events.TicketClosedPayload{ClosedBy: service.SystemActorID, Reason: reason},
	})
}

func (w *InactivityWorker) publish(ctx context.Context, event events.Event) {
	if w.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = w.dispatcher.Publish(ctx, event)
}
