package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/events"
	"github.com/spec-kit/stepup-helpdesk/internal/repository"
)

// NotificationWorker delivers verification links to ticket subjects by
// posting a SYSTEM message into the ticket transcript. The chat channel
// is the delivery medium; the agent never sees the raw link.
type NotificationWorker struct {
	chat   repository.ChatRepository
	logger *zap.Logger
}

// NewNotificationWorker builds the worker.
func NewNotificationWorker(chat repository.ChatRepository, logger *zap.Logger) *NotificationWorker {
	return &NotificationWorker{chat: chat, logger: logger}
}

// Register subscribes the worker's handlers on the dispatcher.
func (w *NotificationWorker) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventVerificationStarted, w.handleVerificationStarted)
	dispatcher.Subscribe(events.EventPasswordResetGranted, w.handlePasswordResetGranted)
}

func (w *NotificationWorker) handleVerificationStarted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.VerificationStartedPayload)
	if !ok {
		w.logger.Warn("unexpected payload type", zap.String("event_type", string(event.Type)))
		return nil
	}

	msg := &domain.ChatMessage{
		TicketID:   event.TicketID,
		AuthorType: domain.AuthorTypeSystem,
		Body: fmt.Sprintf(
			"Identity verification required. Open the link to answer your security questions: %s (expires %s)",
			payload.VerifyURL,
			payload.ExpiresAt.Format("15:04 MST"),
		),
	}
	if err := w.chat.Create(ctx, msg); err != nil {
		w.logger.Error("failed to deliver verification link",
			zap.String("ticket_id", event.TicketID),
			zap.String("session_id", payload.SessionID),
			zap.Error(err))
		return err
	}

	w.logger.Info("verification link delivered",
		zap.String("ticket_id", event.TicketID),
		zap.String("session_id", payload.SessionID))
	return nil
}

func (w *NotificationWorker) handlePasswordResetGranted(ctx context.Context, event events.Event) error {
	msg := &domain.ChatMessage{
		TicketID:   event.TicketID,
		AuthorType: domain.AuthorTypeSystem,
		Body:       "Your password has been reset by support. The agent will share the temporary password with you; change it after your next login.",
	}
	if err := w.chat.Create(ctx, msg); err != nil {
		w.logger.Error("failed to post reset notice",
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return err
	}
	return nil
}
