package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsafonov/proofdesk/internal/audit"
	"github.com/nsafonov/proofdesk/internal/bot/catalog"
	"github.com/nsafonov/proofdesk/internal/bot/entitlements"
	"github.com/nsafonov/proofdesk/internal/bot/records"
	"github.com/nsafonov/proofdesk/internal/recordstore"
	"github.com/nsafonov/proofdesk/internal/transport"
	"github.com/nsafonov/proofdesk/internal/worker"
)

type recordedAudit struct {
	events []audit.Event
}

func (r *recordedAudit) Record(_ context.Context, ev audit.Event) error {
	r.events = append(r.events, ev)
	return nil
}

type adminEnv struct {
	msgr      *fakeMessenger
	store     *recordstore.Memory
	handler   *AdminHandler
	pool      *worker.Pool
	audit     *recordedAudit
	restarted bool
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	e := &adminEnv{
		msgr:  &fakeMessenger{},
		store: recordstore.NewMemory(),
		pool:  worker.NewPool(1, 4, testLogger()),
		audit: &recordedAudit{},
	}
	descriptors := catalog.NewDescriptors(e.store, "descriptors", time.Minute, testLogger())
	methods := catalog.NewMethods(e.store, "methods", time.Minute, testLogger())
	ents := entitlements.New(e.store, "payments", time.Minute, testLogger())
	e.handler = NewAdminHandler(e.msgr, descriptors, methods, ents, e.pool, e.audit,
		[]int64{900}, func() { e.restarted = true }, testLogger())
	return e
}

func adminMessage(from int64, text string) *transport.Message {
	return &transport.Message{ID: 1, ChatID: from, From: transport.User{ID: from}, Text: text}
}

func TestAdmin_NonAdminConsumedSilently(t *testing.T) {
	e := newAdminEnv(t)
	assert.True(t, e.handler.HandleMessage(context.Background(), adminMessage(42, "/cacheinfo")))
	assert.Empty(t, e.msgr.sent)
}

func TestAdmin_UnknownCommandNotConsumed(t *testing.T) {
	e := newAdminEnv(t)
	assert.False(t, e.handler.HandleMessage(context.Background(), adminMessage(900, "/start")))
	assert.False(t, e.handler.HandleMessage(context.Background(), adminMessage(900, "hello")))
}

func TestAdmin_ReloadDescriptors(t *testing.T) {
	e := newAdminEnv(t)
	_, err := e.store.Create(context.Background(), "descriptors", recordstore.Fields{
		records.FieldSlug:     recordstore.Text("course_full"),
		records.FieldLanguage: recordstore.Select("en"),
		records.FieldStatus:   recordstore.Select("Active"),
	})
	require.NoError(t, err)

	require.True(t, e.handler.HandleMessage(context.Background(), adminMessage(900, "/reload_descriptors")))
	require.Len(t, e.msgr.sent, 1)
	assert.Equal(t, "Reloaded 1 descriptors.", e.msgr.sent[0].Text)

	require.Len(t, e.audit.events, 1)
	assert.Equal(t, audit.ActionCacheReload, e.audit.events[0].Action)
	assert.Equal(t, int64(900), e.audit.events[0].UserID)
	assert.Equal(t, "descriptors", e.audit.events[0].Details)
}

func TestAdmin_CacheInfo(t *testing.T) {
	e := newAdminEnv(t)
	require.True(t, e.handler.HandleMessage(context.Background(), adminMessage(900, "/cacheinfo")))
	require.Len(t, e.msgr.sent, 1)
	assert.Contains(t, e.msgr.sent[0].Text, "descriptors: 0 entries")
	assert.Contains(t, e.msgr.sent[0].Text, "background tasks in flight: 0")
}

func TestAdmin_Restart(t *testing.T) {
	e := newAdminEnv(t)
	require.True(t, e.handler.HandleMessage(context.Background(), adminMessage(900, "/restart")))
	assert.True(t, e.restarted)
	require.Len(t, e.msgr.sent, 1)
	assert.Equal(t, "Restarting...", e.msgr.sent[0].Text)
}

func TestAdmin_BotNameSuffixStripped(t *testing.T) {
	e := newAdminEnv(t)
	require.True(t, e.handler.HandleMessage(context.Background(), adminMessage(900, "/cacheinfo@proofdesk_bot")))
	assert.Len(t, e.msgr.sent, 1)
}
