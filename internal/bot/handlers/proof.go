// Package handlers contains the update-facing logic: the proof ingestion
// pipeline, the reviewer callback state machine and the admin commands.
// Handlers do the synchronous, user-visible part themselves and push
// everything slow onto the worker pool.
package handlers

import (
	"context"
	"time"

	"github.com/nsafonov/proofdesk/internal/bot/models"
	"github.com/nsafonov/proofdesk/internal/bot/services"
	"github.com/nsafonov/proofdesk/internal/bot/session"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/transport"
	"github.com/nsafonov/proofdesk/internal/worker"
)

// BackToMenuCallback is the callback data of the post-ack "back" button.
const BackToMenuCallback = "back_main"

const (
	ackText = "✅ Payment proof received. We will check it and get back to you."

	invalidFileText = "That file type is not accepted as payment proof. " +
		"Please send a photo, an image file, or a PDF."

	mainMenuText = "Main menu"
)

func backToMenuKeyboard() *transport.InlineKeyboard {
	return transport.SingleButton("Back to main menu", BackToMenuCallback)
}

// ProofHandler is the proof ingestion pipeline.
type ProofHandler struct {
	msgr     transport.Messenger
	session  *session.Store
	payments *services.Payments
	pool     *worker.Pool
	log      logging.Logger

	now func() time.Time
}

func NewProofHandler(msgr transport.Messenger, sess *session.Store, payments *services.Payments, pool *worker.Pool, log logging.Logger) *ProofHandler {
	return &ProofHandler{
		msgr:     msgr,
		session:  sess,
		payments: payments,
		pool:     pool,
		log:      log.With("module", "proof"),
		now:      time.Now,
	}
}

// artifactFrom extracts the proof artifact from a message. The transport
// lists photo renditions smallest first, so the last one is the original.
func artifactFrom(msg *transport.Message) (models.ProofArtifact, bool) {
	if len(msg.Photos) > 0 {
		p := msg.Photos[len(msg.Photos)-1]
		return models.ProofArtifact{
			Kind:     models.ArtifactPhoto,
			FileRef:  p.FileRef,
			UniqueID: p.UniqueID,
		}, true
	}
	if msg.Document != nil {
		return models.ProofArtifact{
			Kind:     models.ArtifactDocument,
			FileRef:  msg.Document.FileRef,
			UniqueID: msg.Document.UniqueID,
			MIMEType: msg.Document.MIMEType,
			FileName: msg.Document.FileName,
		}, true
	}
	return models.ProofArtifact{}, false
}

// HandleMessage processes one inbound message. It returns true when the
// message was consumed by the pipeline.
func (h *ProofHandler) HandleMessage(ctx context.Context, msg *transport.Message) bool {
	userID := msg.From.ID

	exp, awaiting := h.session.Awaiting(userID)
	if !awaiting {
		return false
	}

	artifact, ok := artifactFrom(msg)
	if !ok {
		return false
	}

	if !artifact.Supported() {
		h.rejectInvalidFile(ctx, msg)
		return true
	}

	// duplicate upload: no ack, no background work
	if !h.session.MarkSeen(userID, artifact.UniqueID) {
		h.log.Debug(ctx, "duplicate artifact ignored", "user_id", userID, "unique_id", artifact.UniqueID)
		return true
	}

	if exp.UploadPromptID != 0 {
		if err := h.msgr.DeleteMessage(ctx, msg.ChatID, exp.UploadPromptID); err != nil {
			h.log.Debug(ctx, "deleting upload prompt failed", "error", err)
		}
	}

	// the user must see the ack before this handler returns
	ackID, err := h.msgr.SendMessage(ctx, msg.ChatID, ackText, backToMenuKeyboard())
	if err != nil {
		h.log.Error(ctx, "sending ack failed", "user_id", userID, "error", err)
	} else {
		h.session.RememberAck(userID, ackID, msg.ID)
	}

	h.session.ClearAwaiting(userID)

	claim := models.PaymentClaim{
		UserID:      userID,
		Username:    msg.From.Username,
		PaymentType: exp.PaymentType,
		ProductCode: exp.ProductCode,
		Artifact:    artifact,
		CreatedAt:   h.now(),
	}
	if !h.pool.Submit(func(ctx context.Context) {
		if _, err := h.payments.Persist(ctx, claim); err != nil {
			h.log.Error(ctx, "persisting claim failed", "user_id", claim.UserID, "error", err)
		}
	}) {
		h.log.Error(ctx, "worker queue full, claim not persisted", "user_id", userID)
	}

	return true
}

// rejectInvalidFile removes the offending message (best effort) and tells
// the user which kinds are accepted.
func (h *ProofHandler) rejectInvalidFile(ctx context.Context, msg *transport.Message) {
	if err := h.msgr.DeleteMessage(ctx, msg.ChatID, msg.ID); err != nil {
		h.log.Debug(ctx, "deleting invalid proof failed", "error", err)
	}
	if _, err := h.msgr.SendMessage(ctx, msg.ChatID, invalidFileText, backToMenuKeyboard()); err != nil {
		h.log.Error(ctx, "sending invalid-file notice failed", "user_id", msg.From.ID, "error", err)
	}
}

// HandleCallback handles the post-ack "back to main menu" button: answer,
// show the menu immediately, clean the ack and proof messages up in the
// background.
func (h *ProofHandler) HandleCallback(ctx context.Context, cb *transport.Callback) bool {
	if cb.Data != BackToMenuCallback || cb.Message == nil {
		return false
	}
	chatID := cb.Message.ChatID

	if err := h.msgr.AnswerCallback(ctx, cb.ID, "", false); err != nil {
		h.log.Debug(ctx, "answering callback failed", "error", err)
	}
	if _, err := h.msgr.SendMessage(ctx, chatID, mainMenuText, nil); err != nil {
		h.log.Error(ctx, "sending menu failed", "user_id", cb.From.ID, "error", err)
	}

	ackID, proofID := h.session.TakeAck(cb.From.ID)
	if ackID == 0 && proofID == 0 {
		return true
	}
	h.pool.Submit(func(ctx context.Context) {
		for _, id := range []int{ackID, proofID} {
			if id == 0 {
				continue
			}
			if err := h.msgr.DeleteMessage(ctx, chatID, id); err != nil {
				h.log.Debug(ctx, "cleanup delete failed", "message_id", id, "error", err)
			}
		}
	})
	return true
}
