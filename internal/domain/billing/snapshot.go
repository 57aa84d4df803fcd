package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/school-billing/internal/domain/entity"
)

// Snapshot is the derived financial state of an invoice. Its fields can only
// be set by Derive.
type Snapshot struct {
	invoiceCode string
	amountDue   decimal.Decimal
	amountPaid  decimal.Decimal
	balance     decimal.Decimal
	status      entity.InvoiceStatus
	issuedAt    *time.Time
	dueAt       *time.Time
}

func (s Snapshot) InvoiceCode() string { return s.invoiceCode }
func (s Snapshot) AmountDue() decimal.Decimal { return s.amountDue }
func (s Snapshot) AmountPaid() decimal.Decimal { return s.amountPaid }
func (s Snapshot) Balance() decimal.Decimal { return s.balance }
func (s Snapshot) Status() entity.InvoiceStatus { return s.status }
func (s Snapshot) IssuedAt() *time.Time { return s.issuedAt }
func (s Snapshot) DueAt() *time.Time { return s.dueAt }

// Derive computes the canonical snapshot from a payload and the student it
// resolved to, and returns a copy of the payload with the student's identity
// merged into its customer object. It performs no I/O.
func Derive(payload Payload, student *entity.Student) (Snapshot, Payload) {
	merged := payload.Clone()
	mergeStudent(merged, student)

	due := firstNumber(merged, []string{"amountDue"}, []string{"totals", "grandTotal"})
	paid, ok := nonNegative(merged.Number("amountPaid"))
	if !ok {
		paid = sumPayments(merged)
	}

	balance, ok := nonNegative(merged.Number("balance"))
	if !ok {
		balance = decimal.Max(decimal.Zero, due.Sub(paid))
	}

	snap := Snapshot{
		invoiceCode: firstString(merged, []string{"invoiceCode"}, []string{"invoice", "statementNo"}),
		amountDue:   due,
		amountPaid:  paid,
		balance:     balance,
		status:      deriveStatus(merged, due, paid, balance),
		issuedAt:    firstTime(merged, []string{"issuedAt"}, []string{"invoice", "dateIssued"}),
		dueAt:       firstTime(merged, []string{"dueAt"}, []string{"invoice", "dueDate"}),
	}
	return snap, merged
}

// deriveStatus applies the status precedence. An explicit status from the
// fixed set always wins. A zero-due invoice never reaches Paid.
func deriveStatus(p Payload, due, paid, balance decimal.Decimal) entity.InvoiceStatus {
	if explicit := entity.InvoiceStatus(p.String("status")); explicit.IsValid() {
		return explicit
	}

	switch {
	case balance.LessThanOrEqual(decimal.Zero) && due.GreaterThan(decimal.Zero):
		return entity.InvoiceStatusPaid
	case paid.GreaterThan(decimal.Zero):
		return entity.InvoiceStatusPartiallyPaid
	case due.GreaterThan(decimal.Zero):
		return entity.InvoiceStatusIssued
	default:
		return entity.InvoiceStatusDraft
	}
}

func sumPayments(p Payload) decimal.Decimal {
	total := decimal.Zero
	for _, obj := range p.paymentObjects() {
		if amount, ok := nonNegative(Payload(obj).Number("amount")); ok {
			total = total.Add(amount)
		}
	}
	return total
}

// mergeStudent fills customer.studentId, customer.accountNo and
// customer.name from the student without overwriting client values.
func mergeStudent(p Payload, student *entity.Student) {
	if student == nil {
		return
	}
	customer := p.Object("customer")
	if customer == nil {
		customer = map[string]interface{}{}
		p["customer"] = customer
	}

	fill := func(key, value string) {
		if value == "" {
			return
		}
		if Payload(customer).String(key) == "" {
			customer[key] = value
		}
	}
	fill("studentId", student.ID)
	fill("accountNo", student.StudentCode)
	fill("name", student.FullName)
}

func nonNegative(d decimal.Decimal, ok bool) (decimal.Decimal, bool) {
	if !ok {
		return decimal.Zero, false
	}
	return decimal.Max(decimal.Zero, d), true
}

func firstNumber(p Payload, paths ...[]string) decimal.Decimal {
	for _, path := range paths {
		if d, ok := nonNegative(p.Number(path...)); ok {
			return d
		}
	}
	return decimal.Zero
}

func firstString(p Payload, paths ...[]string) string {
	for _, path := range paths {
		if s := p.String(path...); s != "" {
			return s
		}
	}
	return ""
}

func firstTime(p Payload, paths ...[]string) *time.Time {
	for _, path := range paths {
		if t := p.Time(path...); t != nil {
			return t
		}
	}
	return nil
}
