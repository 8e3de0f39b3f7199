package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nsafonov/proofdesk/internal/audit"
	"github.com/nsafonov/proofdesk/internal/bot/catalog"
	"github.com/nsafonov/proofdesk/internal/bot/entitlements"
	"github.com/nsafonov/proofdesk/internal/cache"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/transport"
	"github.com/nsafonov/proofdesk/internal/worker"
)

// AdminHandler serves the operator commands: cache reloads, cache
// diagnostics and restart. Allow-listed, no state machine.
type AdminHandler struct {
	msgr         transport.Messenger
	descriptors  *catalog.Descriptors
	methods      *catalog.Methods
	entitlements *entitlements.Cache
	pool         *worker.Pool
	audit        audit.Recorder
	admins       []int64
	log          logging.Logger

	// restart asks the app to shut down so the supervisor restarts it.
	restart func()
}

func NewAdminHandler(
	msgr transport.Messenger,
	descriptors *catalog.Descriptors,
	methods *catalog.Methods,
	ents *entitlements.Cache,
	pool *worker.Pool,
	rec audit.Recorder,
	admins []int64,
	restart func(),
	log logging.Logger,
) *AdminHandler {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &AdminHandler{
		msgr:         msgr,
		descriptors:  descriptors,
		methods:      methods,
		entitlements: ents,
		pool:         pool,
		audit:        rec,
		admins:       admins,
		restart:      restart,
		log:          log.With("module", "admin"),
	}
}

func (h *AdminHandler) allowed(userID int64) bool {
	for _, id := range h.admins {
		if id == userID {
			return true
		}
	}
	return false
}

// HandleMessage processes one admin command. It returns true when the
// message was an admin command (even a denied one).
func (h *AdminHandler) HandleMessage(ctx context.Context, msg *transport.Message) bool {
	cmd := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(cmd, "/") {
		return false
	}
	// strip a bot-name suffix like /cacheinfo@mybot
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/reload_descriptors", "/reload_methods", "/reload_entitlements", "/cacheinfo", "/restart":
	default:
		return false
	}

	if !h.allowed(msg.From.ID) {
		h.log.Warn(ctx, "admin command from non-admin", "user_id", msg.From.ID, "command", cmd)
		return true
	}

	switch cmd {
	case "/reload_descriptors":
		h.replyReload(ctx, msg, "descriptors", func() (int, error) {
			return h.descriptors.Reload(ctx)
		})
	case "/reload_methods":
		h.replyReload(ctx, msg, "payment methods", func() (int, error) {
			return h.methods.Reload(ctx)
		})
	case "/reload_entitlements":
		h.entitlements.Clear()
		h.recordReload(ctx, msg.From.ID, "entitlements")
		h.reply(ctx, msg.ChatID, "Entitlement cache cleared.")
	case "/cacheinfo":
		h.reply(ctx, msg.ChatID, h.cacheInfo())
	case "/restart":
		h.reply(ctx, msg.ChatID, "Restarting...")
		if h.restart != nil {
			h.restart()
		}
	}
	return true
}

func (h *AdminHandler) replyReload(ctx context.Context, msg *transport.Message, what string, reload func() (int, error)) {
	n, err := reload()
	if err != nil {
		h.log.Error(ctx, "reload failed", "what", what, "error", err)
		h.reply(ctx, msg.ChatID, fmt.Sprintf("Reloading %s failed: %v", what, err))
		return
	}
	h.recordReload(ctx, msg.From.ID, what)
	h.reply(ctx, msg.ChatID, fmt.Sprintf("Reloaded %d %s.", n, what))
}

func (h *AdminHandler) recordReload(ctx context.Context, adminID int64, what string) {
	err := h.audit.Record(ctx, audit.Event{
		Action:  audit.ActionCacheReload,
		UserID:  adminID,
		Details: what,
	})
	if err != nil {
		h.log.Warn(ctx, "recording cache reload failed", "error", err)
	}
}

func (h *AdminHandler) cacheInfo() string {
	var b strings.Builder
	writeInfo := func(name string, info cache.Info) {
		fmt.Fprintf(&b, "%s: %d entries", name, info.Keys)
		if info.Keys > 0 {
			fmt.Fprintf(&b, " (age %s..%s)", info.MinAge.Round(time.Second), info.MaxAge.Round(time.Second))
		}
		b.WriteByte('\n')
	}
	writeInfo("descriptors", h.descriptors.Info())
	writeInfo("payment methods", h.methods.Info())
	writeInfo("entitlements", h.entitlements.Info())
	fmt.Fprintf(&b, "background tasks in flight: %d", h.pool.InFlight())
	return b.String()
}

func (h *AdminHandler) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.msgr.SendMessage(ctx, chatID, text, nil); err != nil {
		h.log.Error(ctx, "sending admin reply failed", "error", err)
	}
}
