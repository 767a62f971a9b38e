package client

import (
	"context"

	"github.com/agriclip/chat-service/internal/models"
	"github.com/agriclip/chat-service/internal/service"
)

// Reconciler drives the polling loop against the orchestrator after a
// classification submit: each tick asks the orchestrator to reconcile
// the job and refreshes local history.
type Reconciler struct {
	svc    *service.ChatService
	poller *Poller
}

func NewReconciler(svc *service.ChatService, poller *Poller) *Reconciler {
	return &Reconciler{svc: svc, poller: poller}
}

// AwaitClassification polls until the job reaches a terminal state and
// its result message is merged into conv, or the polling budget runs
// out (ErrPollTimeout). Returns the synthesized message when this
// caller's poll materialized it; nil when a concurrent poller got there
// first (the message still lands in conv via the history merge).
func (r *Reconciler) AwaitClassification(ctx context.Context, conv *Conversation, uploadID, sessionID, userID string, historyLimit int64) (*models.Message, error) {
	var materialized *models.Message

	err := r.poller.Run(ctx, func(ctx context.Context) (bool, error) {
		msg, err := r.svc.ReconcileClassification(ctx, uploadID, sessionID, userID)
		if err != nil {
			return false, err
		}
		if msg != nil {
			materialized = msg
		}

		history, err := r.svc.History(ctx, userID, sessionID, historyLimit)
		if err != nil {
			return false, err
		}
		conv.Merge(history...)

		if materialized != nil {
			return true, nil
		}
		// A concurrent poller may have materialized the result; wait
		// until its message shows up in the merged history.
		snap, ok := r.svc.JobStatus(uploadID)
		if !ok || !snap.Status.Terminal() {
			return false, nil
		}
		if snap.Correlation.MessageID == "" {
			return true, nil
		}
		return resultMerged(conv, snap.Correlation.MessageID), nil
	})
	if err != nil {
		return nil, err
	}
	return materialized, nil
}

// resultMerged reports whether conv holds a non-user message answering
// the triggering message.
func resultMerged(conv *Conversation, triggerID string) bool {
	for _, m := range conv.Messages() {
		if m.MessageType != models.MessageTypeUser && m.Context.PreviousMessageID == triggerID {
			return true
		}
	}
	return false
}

// SyncHistory is a single-shot history merge for session re-entry.
func (r *Reconciler) SyncHistory(ctx context.Context, conv *Conversation, sessionID, userID string, limit int64) (int, error) {
	history, err := r.svc.History(ctx, userID, sessionID, limit)
	if err != nil {
		return 0, err
	}
	return conv.Merge(history...), nil
}
