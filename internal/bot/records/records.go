// Package records maps the loosely-typed pages of the external record
// store onto the typed views the bot works with. Field names here must
// match the collections' schemas exactly.
package records

import (
	"time"

	"github.com/nsafonov/proofdesk/internal/recordstore"
)

// Field names shared across collections.
const (
	FieldName       = "Name"
	FieldTelegramID = "Telegram ID"
	FieldStatus     = "Status"
	FieldUser       = "User"
	FieldUsername   = "Username"
	FieldExpiresAt  = "Expires at"
)

// Payment collection fields.
const (
	FieldType           = "Type"
	FieldProducts       = "Products"
	FieldProductName    = "Product Name"
	FieldProofFileID    = "Proof TG file_id"
	FieldProcessedAt    = "Processed at"
	FieldAdmin          = "Admin"
	FieldLinkedPurchase = "Linked Purchase"
)

// Product collection fields.
const (
	FieldSlug       = "Slug/Code"
	FieldAccessDays = "Access days"
	FieldActive     = "Active"
)

// Purchase collection fields.
const (
	FieldProduct = "Product"
	FieldPayment = "Payment"
	FieldPaidAt  = "Paid at"
)

// Descriptor collection fields.
const (
	FieldLanguage = "Language"
	FieldShort    = "Short"
	FieldFull     = "Full"
)

// Payment-method collection fields.
const (
	FieldCode        = "Code"
	FieldOrder       = "Order"
	FieldCurrency    = "Currency"
	FieldButtonRU    = "Button RU"
	FieldButtonEN    = "Button EN"
	FieldDetailsSlug = "Details Slug"
	FieldRatePerEUR  = "Rate per 1 EUR"
	FieldRoundTo     = "Round to"
)

// FastFieldDefs are the denormalized payment fields created on demand
// before the first fast-field write.
var FastFieldDefs = []recordstore.FieldDef{
	{Name: FieldProductName, Kind: recordstore.KindText},
	{Name: FieldExpiresAt, Kind: recordstore.KindDate},
}

// Payment is a typed view over a payment page.
type Payment struct {
	Ref    string
	Fields recordstore.Fields
}

func PaymentFrom(p recordstore.Page) Payment {
	return Payment{Ref: p.Ref, Fields: p.Fields}
}

func (p Payment) UserID() int64 {
	n, _ := p.Fields.Number(FieldTelegramID)
	return int64(n)
}

func (p Payment) Status() string     { return p.Fields.Text(FieldStatus) }
func (p Payment) Type() string       { return p.Fields.Text(FieldType) }
func (p Payment) ProductRef() string { return p.Fields.FirstRef(FieldProducts) }
func (p Payment) ProofFileID() string {
	return p.Fields.Text(FieldProofFileID)
}

// ProductName reads the denormalized fast field; "" when never written.
func (p Payment) ProductName() string { return p.Fields.Text(FieldProductName) }

// ExpiresAt reads the denormalized fast field; nil means no expiry.
func (p Payment) ExpiresAt() *time.Time {
	t, ok := p.Fields.Date(FieldExpiresAt)
	if !ok {
		return nil
	}
	return &t
}

// Product is a typed view over a product page.
type Product struct {
	Ref    string
	Fields recordstore.Fields
}

func ProductFrom(p recordstore.Page) Product {
	return Product{Ref: p.Ref, Fields: p.Fields}
}

func (p Product) Name() string { return p.Fields.Text(FieldName) }
func (p Product) Slug() string { return p.Fields.Text(FieldSlug) }
func (p Product) Active() bool { return p.Fields.Checkbox(FieldActive) }

// AccessDays returns the access duration in days; ok is false when the
// product grants unlimited access.
func (p Product) AccessDays() (int, bool) {
	n, ok := p.Fields.Number(FieldAccessDays)
	if !ok || n <= 0 {
		return 0, false
	}
	return int(n), true
}

// User is a typed view over a user page.
type User struct {
	Ref    string
	Fields recordstore.Fields
}

func UserFrom(p recordstore.Page) User {
	return User{Ref: p.Ref, Fields: p.Fields}
}

func (u User) TelegramID() int64 {
	n, _ := u.Fields.Number(FieldTelegramID)
	return int64(n)
}

func (u User) Username() string { return u.Fields.Text(FieldUsername) }
