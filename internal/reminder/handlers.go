package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/email"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/eventbus"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/scheduler"
)

// Job types owned by this package.
const (
	JobTypeReminder = "partner.reminder"
	JobTypePing     = "ping"
)

// EventReminderSent is published on the in-process bus after a reminder
// email goes out.
const EventReminderSent = "reminder.sent"

// Handlers holds the business job handlers for activity reminders.
type Handlers struct {
	sender   email.Sender
	bus      *eventbus.Bus
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandlers(sender email.Sender, bus *eventbus.Bus, logger *slog.Logger) *Handlers {
	return &Handlers{
		sender:   sender,
		bus:      bus,
		logger:   logger.With("component", "reminder"),
		validate: validator.New(),
	}
}

// RegisterAll wires every handler into the registry.
func (h *Handlers) RegisterAll(reg *scheduler.Registry) {
	reg.Register(JobTypeReminder, h.SendReminder)
	reg.Register(JobTypePing, h.Ping)
}

type reminderPayload struct {
	Email        string    `json:"email"         validate:"required,email"`
	Name         string    `json:"name"          validate:"required"`
	ActivityID   string    `json:"activity_id"   validate:"required"`
	ActivityName string    `json:"activity_name" validate:"required"`
	StartsAt     time.Time `json:"starts_at"     validate:"required"`
}

// SendReminder emails a participant before their activity starts. A payload
// that fails validation is a scheduling bug, not a transient fault, so it is
// rejected as non-retryable.
func (h *Handlers) SendReminder(ctx context.Context, payload domain.Payload, job scheduler.JobContext) error {
	var p reminderPayload
	if err := decodePayload(payload, &p); err != nil {
		return fmt.Errorf("%w: decode reminder payload: %v", domain.ErrNonRetryable, err)
	}
	if err := h.validate.Struct(&p); err != nil {
		return fmt.Errorf("%w: invalid reminder payload: %v", domain.ErrNonRetryable, err)
	}

	msg := email.Message{
		To:      p.Email,
		Subject: fmt.Sprintf("Reminder: %s starts soon", p.ActivityName),
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your activity <strong>%s</strong> starts at %s. See you there!</p>",
			p.Name, p.ActivityName, p.StartsAt.Format("15:04, Jan 2"),
		),
	}
	if err := h.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reminder email: %w", err)
	}

	h.bus.Publish(ctx, EventReminderSent, "activity", p.ActivityID, domain.Payload{
		"email":    p.Email,
		"job_id":   job.JobID,
		"attempts": job.Attempts,
	})
	return nil
}

// Ping records its invocation and succeeds. Used by the seeder and smoke
// checks.
func (h *Handlers) Ping(_ context.Context, payload domain.Payload, job scheduler.JobContext) error {
	h.logger.Info("ping", "job_id", job.JobID, "source", job.Source, "payload", payload)
	return nil
}

// decodePayload round-trips the loose document through JSON into a typed
// struct so validation tags apply.
func decodePayload(payload domain.Payload, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
