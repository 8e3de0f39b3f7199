// Package services implements the background side of the claim flow: the
// persistence worker that turns an acknowledged proof into a payment record
// plus reviewer notifications, and the terminal approve/reject branches.
package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nsafonov/proofdesk/internal/archive"
	"github.com/nsafonov/proofdesk/internal/audit"
	"github.com/nsafonov/proofdesk/internal/bot/approval"
	"github.com/nsafonov/proofdesk/internal/bot/entitlements"
	"github.com/nsafonov/proofdesk/internal/bot/models"
	"github.com/nsafonov/proofdesk/internal/bot/pending"
	"github.com/nsafonov/proofdesk/internal/bot/records"
	"github.com/nsafonov/proofdesk/internal/common"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/recordstore"
	"github.com/nsafonov/proofdesk/internal/slug"
	"github.com/nsafonov/proofdesk/internal/transport"
)

// Collections names the record-store collections the service writes to.
// Purchases may be empty, disabling purchase records.
type Collections struct {
	Payments  string
	Products  string
	Users     string
	Purchases string
}

// Payments persists claims, notifies reviewers and executes the terminal
// review decisions.
type Payments struct {
	msgr         transport.Messenger
	store        recordstore.Store
	pending      *pending.Store
	entitlements *entitlements.Cache
	audit        audit.Recorder
	archiver     archive.Archiver
	coll         Collections
	reviewers    []int64
	log          logging.Logger

	now func() time.Time
}

func NewPayments(
	msgr transport.Messenger,
	store recordstore.Store,
	pend *pending.Store,
	ents *entitlements.Cache,
	rec audit.Recorder,
	arch archive.Archiver,
	coll Collections,
	reviewers []int64,
	log logging.Logger,
) *Payments {
	if rec == nil {
		rec = audit.Nop{}
	}
	if arch == nil {
		arch = archive.Nop{}
	}
	return &Payments{
		msgr:         msgr,
		store:        store,
		pending:      pend,
		entitlements: ents,
		audit:        rec,
		archiver:     arch,
		coll:         coll,
		reviewers:    reviewers,
		log:          log.With("module", "payments"),
		now:          time.Now,
	}
}

// Persist creates the payment record for a claim and notifies every
// configured reviewer. Record creation failing does not suppress the
// notifications: reviewers can still act on the inline context, and an
// unpersisted-but-reviewable claim beats a silently dropped one.
func (p *Payments) Persist(ctx context.Context, claim models.PaymentClaim) (string, error) {
	code := claim.ProductCode
	if code == "" {
		code = slug.FromPaymentType(claim.PaymentType)
	}
	canonicalType := code
	if canonicalType == "" {
		canonicalType = claim.PaymentType
	}

	product, productFound := p.productBySlug(ctx, code)
	user, userFound := p.userByTelegramID(ctx, claim.UserID)
	if claim.Username == "" && userFound {
		claim.Username = user.Username()
	}

	if err := p.store.EnsureFields(ctx, p.coll.Payments, records.FastFieldDefs); err != nil {
		p.log.Warn(ctx, "ensuring fast fields failed", "error", err)
	}

	fields := recordstore.Fields{
		records.FieldName: recordstore.Title(
			fmt.Sprintf("Payment %d %s", claim.UserID, p.now().Format("2006-01-02 15:04"))),
		records.FieldTelegramID:  recordstore.Number(float64(claim.UserID)),
		records.FieldProofFileID: recordstore.Text(claim.Artifact.FileRef),
		records.FieldStatus:      recordstore.Select(common.StatusSubmitted),
		records.FieldType:        recordstore.Text(canonicalType),
	}
	if userFound {
		fields[records.FieldUser] = recordstore.Relation(user.Ref)
	}
	if productFound {
		fields[records.FieldProducts] = recordstore.Relation(product.Ref)
		if name := product.Name(); name != "" {
			fields[records.FieldProductName] = recordstore.Text(name)
		}
	}

	ref, createErr := p.store.Create(ctx, p.coll.Payments, fields)
	if createErr != nil {
		p.log.Error(ctx, "creating payment record failed", "user_id", claim.UserID, "error", createErr)
		ref = ""
	}

	entry := pending.Entry{
		UserID:      claim.UserID,
		PaymentType: claim.PaymentType,
		ProductCode: code,
		RecordRef:   ref,
	}
	if ref != "" {
		// composite token stays resolvable after a restart
		entry.ShortID = approval.Encode(ref, claim.UserID)
	}
	token := p.pending.Remember(entry)

	p.notifyReviewers(ctx, claim, canonicalType, token)

	if key, err := p.archiver.Store(ctx, claim.UserID, claim.Artifact.FileRef); err != nil {
		p.log.Warn(ctx, "archiving proof failed", "user_id", claim.UserID, "error", err)
	} else if key != "" {
		p.log.Info(ctx, "proof archived", "user_id", claim.UserID, "key", key)
	}

	if err := p.audit.Record(ctx, audit.Event{
		Action:  audit.ActionClaimSubmitted,
		UserID:  claim.UserID,
		Details: fmt.Sprintf("type=%s record=%s", canonicalType, ref),
	}); err != nil {
		p.log.Warn(ctx, "audit record failed", "error", err)
	}

	if createErr != nil {
		return "", fmt.Errorf("creating payment record: %w", createErr)
	}
	return ref, nil
}

// Approve marks the payment paid, resolves the product, writes the
// denormalized fast fields, invalidates the user's entitlements and
// creates a linked purchase record. Only the status update is mandatory.
func (p *Payments) Approve(ctx context.Context, entry pending.Entry, adminID int64) error {
	if entry.RecordRef == "" {
		return common.ErrUnknownApproval
	}

	now := p.now()
	err := p.store.Update(ctx, entry.RecordRef, recordstore.Fields{
		records.FieldStatus:      recordstore.Select(common.StatusPaid),
		records.FieldProcessedAt: recordstore.Date(now),
		records.FieldAdmin:       recordstore.Text(strconv.FormatInt(adminID, 10)),
	})
	if err != nil {
		return fmt.Errorf("marking payment paid: %w", err)
	}

	payment, err := p.retrievePayment(ctx, entry.RecordRef)
	if err != nil {
		p.log.Warn(ctx, "retrieving payment after approval failed", "record", entry.RecordRef, "error", err)
	}

	product, productFound := p.resolveProduct(ctx, entry, payment)

	if productFound {
		if payment.ProductRef() == "" {
			if err := p.store.Update(ctx, entry.RecordRef, recordstore.Fields{
				records.FieldProducts: recordstore.Relation(product.Ref),
			}); err != nil {
				p.log.Warn(ctx, "linking product to payment failed", "record", entry.RecordRef, "error", err)
			}
		}
		p.writeFastFields(ctx, entry.RecordRef, product, now)
	}

	p.entitlements.Invalidate(entry.UserID)

	if productFound && p.coll.Purchases != "" {
		p.createPurchase(ctx, entry, product, now)
	}

	if err := p.audit.Record(ctx, audit.Event{
		Action:  audit.ActionClaimApproved,
		UserID:  entry.UserID,
		Details: fmt.Sprintf("record=%s admin=%d", entry.RecordRef, adminID),
	}); err != nil {
		p.log.Warn(ctx, "audit record failed", "error", err)
	}

	return nil
}

// Reject marks the payment rejected with the processing metadata. No
// product resolution, no entitlement change.
func (p *Payments) Reject(ctx context.Context, entry pending.Entry, adminID int64) error {
	if entry.RecordRef == "" {
		return common.ErrUnknownApproval
	}

	err := p.store.Update(ctx, entry.RecordRef, recordstore.Fields{
		records.FieldStatus:      recordstore.Select(common.StatusRejected),
		records.FieldProcessedAt: recordstore.Date(p.now()),
		records.FieldAdmin:       recordstore.Text(strconv.FormatInt(adminID, 10)),
	})
	if err != nil {
		return fmt.Errorf("marking payment rejected: %w", err)
	}

	if err := p.audit.Record(ctx, audit.Event{
		Action:  audit.ActionClaimRejected,
		UserID:  entry.UserID,
		Details: fmt.Sprintf("record=%s admin=%d", entry.RecordRef, adminID),
	}); err != nil {
		p.log.Warn(ctx, "audit record failed", "error", err)
	}

	return nil
}

func (p *Payments) notifyReviewers(ctx context.Context, claim models.PaymentClaim, canonicalType, token string) {
	caption := fmt.Sprintf(
		"New payment proof\nUser: %d @%s\nProduct: %s",
		claim.UserID, claim.Username, canonicalType)
	kb := ReviewActionsKeyboard(token)

	for _, reviewer := range p.reviewers {
		var err error
		switch claim.Artifact.Kind {
		case models.ArtifactDocument:
			_, err = p.msgr.SendDocument(ctx, reviewer, claim.Artifact.FileRef, caption, kb)
		default:
			_, err = p.msgr.SendPhoto(ctx, reviewer, claim.Artifact.FileRef, caption, kb)
		}
		if err != nil {
			p.log.Error(ctx, "notifying reviewer failed", "reviewer", reviewer, "error", err)
		}
	}
}

func (p *Payments) productBySlug(ctx context.Context, code string) (records.Product, bool) {
	if code == "" {
		return records.Product{}, false
	}
	pages, err := p.store.Query(ctx, p.coll.Products, &recordstore.Filter{
		Field:  records.FieldSlug,
		Equals: recordstore.Text(code),
	})
	if err != nil {
		p.log.Warn(ctx, "product lookup failed", "slug", code, "error", err)
		return records.Product{}, false
	}
	if len(pages) == 0 {
		return records.Product{}, false
	}
	return records.ProductFrom(pages[0]), true
}

func (p *Payments) userByTelegramID(ctx context.Context, userID int64) (records.User, bool) {
	pages, err := p.store.Query(ctx, p.coll.Users, &recordstore.Filter{
		Field:  records.FieldTelegramID,
		Equals: recordstore.Number(float64(userID)),
	})
	if err != nil {
		p.log.Warn(ctx, "user lookup failed", "user_id", userID, "error", err)
		return records.User{}, false
	}
	if len(pages) == 0 {
		return records.User{}, false
	}
	return records.UserFrom(pages[0]), true
}

func (p *Payments) retrievePayment(ctx context.Context, ref string) (records.Payment, error) {
	fields, err := p.store.Retrieve(ctx, ref)
	if err != nil {
		return records.Payment{Ref: ref, Fields: recordstore.Fields{}}, err
	}
	return records.Payment{Ref: ref, Fields: fields}, nil
}

// resolveProduct tries, in order: the claim's explicit code, the payment's
// product relation, the canonical slug of the stored payment type, and
// finally the claim's payment type.
func (p *Payments) resolveProduct(ctx context.Context, entry pending.Entry, payment records.Payment) (records.Product, bool) {
	if product, ok := p.productBySlug(ctx, entry.ProductCode); ok {
		return product, true
	}

	if ref := payment.ProductRef(); ref != "" {
		fields, err := p.store.Retrieve(ctx, ref)
		if err != nil {
			p.log.Warn(ctx, "retrieving linked product failed", "product", ref, "error", err)
		} else {
			return records.Product{Ref: ref, Fields: fields}, true
		}
	}

	if code := slug.FromPaymentType(payment.Type()); code != "" {
		if product, ok := p.productBySlug(ctx, code); ok {
			return product, true
		}
	}

	if code := slug.FromPaymentType(entry.PaymentType); code != "" && code != entry.ProductCode {
		if product, ok := p.productBySlug(ctx, code); ok {
			return product, true
		}
	}

	return records.Product{}, false
}

func (p *Payments) writeFastFields(ctx context.Context, ref string, product records.Product, approvedAt time.Time) {
	if err := p.store.EnsureFields(ctx, p.coll.Payments, records.FastFieldDefs); err != nil {
		p.log.Warn(ctx, "ensuring fast fields failed", "error", err)
	}

	fields := recordstore.Fields{}
	if name := product.Name(); name != "" {
		fields[records.FieldProductName] = recordstore.Text(name)
	}
	if days, ok := product.AccessDays(); ok {
		fields[records.FieldExpiresAt] = recordstore.Date(approvedAt.AddDate(0, 0, days))
	}
	if len(fields) == 0 {
		return
	}
	if err := p.store.Update(ctx, ref, fields); err != nil {
		p.log.Warn(ctx, "writing fast fields failed", "record", ref, "error", err)
	}
}

func (p *Payments) createPurchase(ctx context.Context, entry pending.Entry, product records.Product, paidAt time.Time) {
	fields := recordstore.Fields{
		records.FieldName: recordstore.Title(
			fmt.Sprintf("Purchase %s %d", product.Name(), entry.UserID)),
		records.FieldStatus:  recordstore.Select(common.StatusPaid),
		records.FieldPaidAt:  recordstore.Date(paidAt),
		records.FieldProduct: recordstore.Relation(product.Ref),
	}
	if user, ok := p.userByTelegramID(ctx, entry.UserID); ok {
		fields[records.FieldUser] = recordstore.Relation(user.Ref)
	}
	if days, ok := product.AccessDays(); ok {
		fields[records.FieldExpiresAt] = recordstore.Date(paidAt.AddDate(0, 0, days))
	}
	if entry.RecordRef != "" {
		fields[records.FieldPayment] = recordstore.Relation(entry.RecordRef)
	}

	purchaseRef, err := p.store.Create(ctx, p.coll.Purchases, fields)
	if err != nil {
		p.log.Warn(ctx, "creating purchase failed", "user_id", entry.UserID, "error", err)
		return
	}

	// link both ways, best effort
	if err := p.store.Update(ctx, entry.RecordRef, recordstore.Fields{
		records.FieldLinkedPurchase: recordstore.Relation(purchaseRef),
	}); err != nil {
		p.log.Warn(ctx, "linking purchase to payment failed", "error", err)
	}
}
