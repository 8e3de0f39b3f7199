package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/nsafonov/proofdesk/internal/bot/approval"
	"github.com/nsafonov/proofdesk/internal/bot/pending"
	"github.com/nsafonov/proofdesk/internal/bot/services"
	"github.com/nsafonov/proofdesk/internal/common"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/transport"
)

// ReviewHandler drives the reviewer decision state machine over inline
// callbacks with data "pay:<action>:<token>".
type ReviewHandler struct {
	msgr      transport.Messenger
	pending   *pending.Store
	payments  *services.Payments
	reviewers []int64
	log       logging.Logger
}

func NewReviewHandler(msgr transport.Messenger, pend *pending.Store, payments *services.Payments, reviewers []int64, log logging.Logger) *ReviewHandler {
	return &ReviewHandler{
		msgr:      msgr,
		pending:   pend,
		payments:  payments,
		reviewers: reviewers,
		log:       log.With("module", "review"),
	}
}

func (h *ReviewHandler) allowed(userID int64) bool {
	for _, id := range h.reviewers {
		if id == userID {
			return true
		}
	}
	return false
}

// HandleCallback processes one reviewer callback. It returns true when the
// callback belonged to the review flow.
func (h *ReviewHandler) HandleCallback(ctx context.Context, cb *transport.Callback) bool {
	if !strings.HasPrefix(cb.Data, services.ReviewCallbackPrefix) {
		return false
	}

	parts := strings.SplitN(cb.Data, ":", 3)
	if len(parts) != 3 {
		h.answer(ctx, cb.ID, "", false)
		return true
	}
	action, token := parts[1], parts[2]

	if !h.allowed(cb.From.ID) {
		h.log.Warn(ctx, "review action from non-reviewer", "user_id", cb.From.ID, "action", action)
		h.answer(ctx, cb.ID, "Not authorized", true)
		return true
	}

	switch action {
	case "confirm":
		h.answer(ctx, cb.ID, "", false)
		h.swapKeyboard(ctx, cb, services.ReviewConfirmKeyboard(token))
	case "no":
		h.answer(ctx, cb.ID, "", false)
		h.swapKeyboard(ctx, cb, services.ReviewActionsKeyboard(token))
	case "yes":
		h.decide(ctx, cb, token, true)
	case "reject":
		h.decide(ctx, cb, token, false)
	default:
		h.answer(ctx, cb.ID, "", false)
	}
	return true
}

// decide runs the terminal approve/reject branch for a token.
func (h *ReviewHandler) decide(ctx context.Context, cb *transport.Callback, token string, approve bool) {
	res, err := approval.Resolve(h.pending, token)
	if err != nil {
		h.log.Warn(ctx, "unresolvable review token", "token", token, "error", err)
		h.answer(ctx, cb.ID, "Payment reference not found", true)
		return
	}

	if approve {
		err = h.payments.Approve(ctx, res.Entry, cb.From.ID)
	} else {
		err = h.payments.Reject(ctx, res.Entry, cb.From.ID)
	}
	if err != nil {
		if errors.Is(err, common.ErrUnknownApproval) {
			h.answer(ctx, cb.ID, "Payment reference not found", true)
			return
		}
		h.log.Error(ctx, "review decision failed", "record", res.Entry.RecordRef, "error", err)
		h.answer(ctx, cb.ID, "Could not update the payment, try again", true)
		return
	}

	if approve {
		h.answer(ctx, cb.ID, "Payment confirmed", false)
	} else {
		h.answer(ctx, cb.ID, "Payment rejected", false)
	}

	if cb.Message != nil {
		if err := h.msgr.DeleteMessage(ctx, cb.Message.ChatID, cb.Message.ID); err != nil {
			h.log.Debug(ctx, "deleting review message failed", "error", err)
		}
	}
	h.pending.Forget(token)
}

func (h *ReviewHandler) swapKeyboard(ctx context.Context, cb *transport.Callback, kb *transport.InlineKeyboard) {
	if cb.Message == nil {
		return
	}
	if err := h.msgr.EditReplyMarkup(ctx, cb.Message.ChatID, cb.Message.ID, kb); err != nil {
		h.log.Debug(ctx, "editing review keyboard failed", "error", err)
	}
}

func (h *ReviewHandler) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := h.msgr.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		h.log.Debug(ctx, "answering callback failed", "error", err)
	}
}
