package entity

// InvoiceStatus is the derived lifecycle status of an invoice
type InvoiceStatus string

// Invoice status constants
const (
	InvoiceStatusDraft         InvoiceStatus = "Draft"
	InvoiceStatusIssued        InvoiceStatus = "Issued"
	InvoiceStatusPartiallyPaid InvoiceStatus = "Partially Paid"
	InvoiceStatusPaid          InvoiceStatus = "Paid"
	InvoiceStatusOverdue       InvoiceStatus = "Overdue"
	InvoiceStatusArchived      InvoiceStatus = "Archived"
)

var invoiceStatuses = map[InvoiceStatus]bool{
	InvoiceStatusDraft:         true,
	InvoiceStatusIssued:        true,
	InvoiceStatusPartiallyPaid: true,
	InvoiceStatusPaid:          true,
	InvoiceStatusOverdue:       true,
	InvoiceStatusArchived:      true,
}

// IsValid returns true if s belongs to the fixed status set
func (s InvoiceStatus) IsValid() bool {
	return invoiceStatuses[s]
}

// PaymentMethod is how a payment was made
type PaymentMethod string

// Payment method constants
const (
	PaymentMethodCash         PaymentMethod = "Cash"
	PaymentMethodGCash        PaymentMethod = "GCash"
	PaymentMethodMaya         PaymentMethod = "Maya"
	PaymentMethodBankTransfer PaymentMethod = "Bank Transfer"
	PaymentMethodCard         PaymentMethod = "Card"
	PaymentMethodOther        PaymentMethod = "Other"
)

var paymentMethods = map[PaymentMethod]bool{
	PaymentMethodCash:         true,
	PaymentMethodGCash:        true,
	PaymentMethodMaya:         true,
	PaymentMethodBankTransfer: true,
	PaymentMethodCard:         true,
	PaymentMethodOther:        true,
}

// IsValid returns true if m is a known payment method
func (m PaymentMethod) IsValid() bool {
	return paymentMethods[m]
}

// Proof status constants stored on payment records
const (
	ProofStatusPending  = "Pending"
	ProofStatusVerified = "Verified"
	ProofStatusRejected = "Rejected"
)

// Student status constants
const (
	StudentStatusActive   = "Active"
	StudentStatusInactive = "Inactive"
)
