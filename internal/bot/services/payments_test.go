package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsafonov/proofdesk/internal/audit"
	"github.com/nsafonov/proofdesk/internal/bot/entitlements"
	"github.com/nsafonov/proofdesk/internal/bot/models"
	"github.com/nsafonov/proofdesk/internal/bot/pending"
	"github.com/nsafonov/proofdesk/internal/bot/records"
	"github.com/nsafonov/proofdesk/internal/common"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/recordstore"
	"github.com/nsafonov/proofdesk/internal/transport"
)

var testColl = Collections{
	Payments:  "payments",
	Products:  "products",
	Users:     "users",
	Purchases: "purchases",
}

type sentMessage struct {
	ChatID  int64
	FileRef string
	Caption string
	KB      *transport.InlineKeyboard
	Kind    string
}

type fakeMessenger struct {
	sent    []sentMessage
	sendErr error
}

func (f *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string, kb *transport.InlineKeyboard) (int, error) {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Caption: text, KB: kb, Kind: "message"})
	return len(f.sent), f.sendErr
}

func (f *fakeMessenger) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, kb *transport.InlineKeyboard) (int, error) {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, FileRef: fileRef, Caption: caption, KB: kb, Kind: "photo"})
	return len(f.sent), f.sendErr
}

func (f *fakeMessenger) SendDocument(ctx context.Context, chatID int64, fileRef, caption string, kb *transport.InlineKeyboard) (int, error) {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, FileRef: fileRef, Caption: caption, KB: kb, Kind: "document"})
	return len(f.sent), f.sendErr
}

func (f *fakeMessenger) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, kb *transport.InlineKeyboard) error {
	return nil
}

func (f *fakeMessenger) EditReplyMarkup(ctx context.Context, chatID int64, messageID int, kb *transport.InlineKeyboard) error {
	return nil
}

func (f *fakeMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return nil
}

func (f *fakeMessenger) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return nil
}

type fakeAudit struct {
	events []audit.Event
}

func (f *fakeAudit) Record(ctx context.Context, ev audit.Event) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeArchiver struct {
	keys []string
	err  error
}

func (f *fakeArchiver) Store(ctx context.Context, userID int64, fileRef string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := "proofs/test/" + fileRef
	f.keys = append(f.keys, key)
	return key, nil
}

// failingCreateStore wraps a Store and fails every Create.
type failingCreateStore struct {
	recordstore.Store
}

func (f *failingCreateStore) Create(ctx context.Context, collection string, fields recordstore.Fields) (string, error) {
	return "", errors.New("store down")
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fixture struct {
	msgr     *fakeMessenger
	store    recordstore.Store
	memory   *recordstore.Memory
	pending  *pending.Store
	ents     *entitlements.Cache
	audit    *fakeAudit
	archiver *fakeArchiver
	svc      *Payments
}

func newFixture(t *testing.T, reviewers []int64) *fixture {
	t.Helper()
	f := &fixture{
		msgr:     &fakeMessenger{},
		memory:   recordstore.NewMemory(),
		pending:  pending.NewStore(time.Hour, 100),
		audit:    &fakeAudit{},
		archiver: &fakeArchiver{},
	}
	f.store = f.memory
	f.ents = entitlements.New(f.memory, testColl.Payments, time.Minute, testLogger())
	f.svc = NewPayments(f.msgr, f.store, f.pending, f.ents, f.audit, f.archiver, testColl, reviewers, testLogger())
	return f
}

func (f *fixture) seedProduct(t *testing.T, slug, name string, accessDays float64) string {
	t.Helper()
	fields := recordstore.Fields{
		records.FieldName: recordstore.Title(name),
		records.FieldSlug: recordstore.Text(slug),
	}
	if accessDays > 0 {
		fields[records.FieldAccessDays] = recordstore.Number(accessDays)
	}
	ref, err := f.memory.Create(context.Background(), testColl.Products, fields)
	require.NoError(t, err)
	return ref
}

func (f *fixture) seedUser(t *testing.T, userID int64) string {
	t.Helper()
	ref, err := f.memory.Create(context.Background(), testColl.Users, recordstore.Fields{
		records.FieldTelegramID: recordstore.Number(float64(userID)),
	})
	require.NoError(t, err)
	return ref
}

func testClaim(userID int64) models.PaymentClaim {
	return models.PaymentClaim{
		UserID:      userID,
		Username:    "alice",
		PaymentType: "webinar_course_full",
		Artifact: models.ProofArtifact{
			Kind:     models.ArtifactPhoto,
			FileRef:  "file-abc",
			UniqueID: "uniq-1",
		},
	}
}

func TestPersist_CreatesRecordAndNotifies(t *testing.T) {
	f := newFixture(t, []int64{500, 501})
	productRef := f.seedProduct(t, "course_full", "Full Course", 30)
	userRef := f.seedUser(t, 42)

	ref, err := f.svc.Persist(context.Background(), testClaim(42))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	fields, err := f.memory.Retrieve(context.Background(), ref)
	require.NoError(t, err)
	payment := records.Payment{Ref: ref, Fields: fields}
	assert.Equal(t, int64(42), payment.UserID())
	assert.Equal(t, common.StatusSubmitted, payment.Status())
	assert.Equal(t, "course_full", payment.Type())
	assert.Equal(t, "file-abc", payment.ProofFileID())
	assert.Equal(t, productRef, payment.ProductRef())
	assert.Equal(t, "Full Course", payment.ProductName())
	assert.Equal(t, userRef, fields.FirstRef(records.FieldUser))

	// both reviewers got the photo with a confirm affordance
	require.Len(t, f.msgr.sent, 2)
	assert.Equal(t, "photo", f.msgr.sent[0].Kind)
	assert.Equal(t, "file-abc", f.msgr.sent[0].FileRef)
	require.NotNil(t, f.msgr.sent[0].KB)
	cb := f.msgr.sent[0].KB.Rows[0][0].Callback
	assert.True(t, strings.HasPrefix(cb, "pay:confirm:"), "callback %q", cb)

	// composite token resolvable after restart
	token := strings.TrimPrefix(cb, "pay:confirm:")
	assert.Equal(t, ref+"|42", token)
	entry, ok := f.pending.Get(token)
	require.True(t, ok)
	assert.Equal(t, ref, entry.RecordRef)

	// archival and audit fired
	assert.Len(t, f.archiver.keys, 1)
	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionClaimSubmitted, f.audit.events[0].Action)
}

func TestPersist_UnknownProductStillPersists(t *testing.T) {
	f := newFixture(t, []int64{500})

	claim := testClaim(42)
	claim.PaymentType = "something_nobody_sells"

	ref, err := f.svc.Persist(context.Background(), claim)
	require.NoError(t, err)

	fields, err := f.memory.Retrieve(context.Background(), ref)
	require.NoError(t, err)
	payment := records.Payment{Ref: ref, Fields: fields}
	assert.Empty(t, payment.ProductRef())
	assert.Empty(t, payment.ProductName())
	assert.Len(t, f.msgr.sent, 1)
}

func TestPersist_UsernameFallsBackToProfile(t *testing.T) {
	f := newFixture(t, []int64{500})
	_, err := f.memory.Create(context.Background(), testColl.Users, recordstore.Fields{
		records.FieldTelegramID: recordstore.Number(42),
		records.FieldUsername:   recordstore.Text("stored_alice"),
	})
	require.NoError(t, err)

	claim := testClaim(42)
	claim.Username = ""
	_, err = f.svc.Persist(context.Background(), claim)
	require.NoError(t, err)

	require.Len(t, f.msgr.sent, 1)
	assert.Contains(t, f.msgr.sent[0].Caption, "@stored_alice")
}

func TestPersist_CreateFailure(t *testing.T) {
	f := newFixture(t, []int64{500})
	failing := &failingCreateStore{Store: f.memory}
	f.svc = NewPayments(f.msgr, failing, f.pending, f.ents, f.audit, f.archiver, testColl, []int64{500}, testLogger())

	ref, err := f.svc.Persist(context.Background(), testClaim(42))
	assert.Error(t, err)
	assert.Empty(t, ref)

	// reviewer notified anyway, with a generated short token
	require.Len(t, f.msgr.sent, 1)
	token := strings.TrimPrefix(f.msgr.sent[0].KB.Rows[0][0].Callback, "pay:confirm:")
	assert.Len(t, token, 16)
	entry, ok := f.pending.Get(token)
	require.True(t, ok)
	assert.Empty(t, entry.RecordRef)
}

func TestPersist_DocumentSentAsDocument(t *testing.T) {
	f := newFixture(t, []int64{500})
	claim := testClaim(42)
	claim.Artifact.Kind = models.ArtifactDocument
	claim.Artifact.MIMEType = "application/pdf"

	_, err := f.svc.Persist(context.Background(), claim)
	require.NoError(t, err)
	require.Len(t, f.msgr.sent, 1)
	assert.Equal(t, "document", f.msgr.sent[0].Kind)
}

func TestApprove_MarksPaidAndWritesFastFields(t *testing.T) {
	f := newFixture(t, []int64{500})
	f.seedProduct(t, "course_full", "Full Course", 30)
	f.seedUser(t, 42)

	ref, err := f.svc.Persist(context.Background(), testClaim(42))
	require.NoError(t, err)

	entry, ok := f.pending.Get(ref + "|42")
	require.True(t, ok)

	before := time.Now()
	require.NoError(t, f.svc.Approve(context.Background(), entry, 500))

	fields, err := f.memory.Retrieve(context.Background(), ref)
	require.NoError(t, err)
	payment := records.Payment{Ref: ref, Fields: fields}
	assert.Equal(t, common.StatusPaid, payment.Status())
	assert.Equal(t, "500", fields.Text(records.FieldAdmin))
	_, hasProcessed := fields.Date(records.FieldProcessedAt)
	assert.True(t, hasProcessed)

	require.NotNil(t, payment.ExpiresAt())
	wantMin := before.AddDate(0, 0, 30)
	assert.False(t, payment.ExpiresAt().Before(wantMin.Add(-time.Minute)),
		"expiry %v should be ~30 days out", payment.ExpiresAt())

	// purchase created and linked back
	assert.NotEmpty(t, fields.FirstRef(records.FieldLinkedPurchase))
	purchases, err := f.memory.Query(context.Background(), testColl.Purchases, nil)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, common.StatusPaid, purchases[0].Fields.Text(records.FieldStatus))
	assert.Equal(t, ref, purchases[0].Fields.FirstRef(records.FieldPayment))

	// approval audited
	actions := make([]string, 0, len(f.audit.events))
	for _, ev := range f.audit.events {
		actions = append(actions, ev.Action)
	}
	assert.Contains(t, actions, audit.ActionClaimApproved)
}

func TestApprove_UnlimitedProductHasNoExpiry(t *testing.T) {
	f := newFixture(t, []int64{500})
	f.seedProduct(t, "course_full", "Full Course", 0)

	ref, err := f.svc.Persist(context.Background(), testClaim(42))
	require.NoError(t, err)
	entry, _ := f.pending.Get(ref + "|42")
	require.NoError(t, f.svc.Approve(context.Background(), entry, 500))

	fields, err := f.memory.Retrieve(context.Background(), ref)
	require.NoError(t, err)
	payment := records.Payment{Ref: ref, Fields: fields}
	assert.Nil(t, payment.ExpiresAt())
	assert.Equal(t, "Full Course", payment.ProductName())
}

func TestApprove_InvalidatesEntitlements(t *testing.T) {
	f := newFixture(t, []int64{500})
	f.seedProduct(t, "course_full", "Full Course", 30)

	// prime the cache with an empty result
	got, err := f.ents.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, got)

	ref, err := f.svc.Persist(context.Background(), testClaim(42))
	require.NoError(t, err)
	entry, _ := f.pending.Get(ref + "|42")
	require.NoError(t, f.svc.Approve(context.Background(), entry, 500))

	got, err = f.ents.Get(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Full Course", got[0].ProductName)
}

func TestApprove_NoRecordRef(t *testing.T) {
	f := newFixture(t, []int64{500})
	err := f.svc.Approve(context.Background(), pending.Entry{UserID: 42}, 500)
	assert.ErrorIs(t, err, common.ErrUnknownApproval)
}

func TestReject_MarksRejectedOnly(t *testing.T) {
	f := newFixture(t, []int64{500})
	f.seedProduct(t, "course_full", "Full Course", 30)

	ref, err := f.svc.Persist(context.Background(), testClaim(42))
	require.NoError(t, err)
	entry, _ := f.pending.Get(ref + "|42")
	require.NoError(t, f.svc.Reject(context.Background(), entry, 500))

	fields, err := f.memory.Retrieve(context.Background(), ref)
	require.NoError(t, err)
	payment := records.Payment{Ref: ref, Fields: fields}
	assert.Equal(t, common.StatusRejected, payment.Status())
	assert.Nil(t, payment.ExpiresAt(), "reject must not grant access")

	purchases, err := f.memory.Query(context.Background(), testColl.Purchases, nil)
	require.NoError(t, err)
	assert.Empty(t, purchases)
}
