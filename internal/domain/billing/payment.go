package billing

import (
	"github.com/shopspring/decimal"
)

// PaymentRecord is one entry of the payload's payments list. It is linked to
// the proof it came from only by Reference.
type PaymentRecord struct {
	Date          string          `json:"date"`
	Reference     string          `json:"reference"`
	Method        string          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	ProofURL      string          `json:"proofUrl,omitempty"`
	ProofStatus   string          `json:"proofStatus,omitempty"`
	ProofFileName string          `json:"proofFileName,omitempty"`
}

func (r PaymentRecord) toObject() map[string]interface{} {
	obj := map[string]interface{}{
		"date":      r.Date,
		"reference": r.Reference,
		"method":    r.Method,
		"amount":    r.Amount.InexactFloat64(),
	}
	if r.ProofURL != "" {
		obj["proofUrl"] = r.ProofURL
	}
	if r.ProofStatus != "" {
		obj["proofStatus"] = r.ProofStatus
	}
	if r.ProofFileName != "" {
		obj["proofFileName"] = r.ProofFileName
	}
	return obj
}

func (p Payload) paymentObjects() []map[string]interface{} {
	var list []interface{}
	switch v := p["payments"].(type) {
	case []interface{}:
		list = v
	case []map[string]interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		out = append(out, v...)
		return out
	default:
		return nil
	}

	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if obj, ok := asObject(item); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Payments returns the payment records in the payload. Entries that are not
// objects are skipped and unparseable amounts read as zero.
func (p Payload) Payments() []PaymentRecord {
	objects := p.paymentObjects()
	records := make([]PaymentRecord, 0, len(objects))
	for _, obj := range objects {
		item := Payload(obj)
		amount, _ := item.Number("amount")
		records = append(records, PaymentRecord{
			Date:          item.String("date"),
			Reference:     item.String("reference"),
			Method:        item.String("method"),
			Amount:        amount,
			ProofURL:      item.String("proofUrl"),
			ProofStatus:   item.String("proofStatus"),
			ProofFileName: item.String("proofFileName"),
		})
	}
	return records
}

// AppendPayment adds a record to the payments list in place.
func (p Payload) AppendPayment(record PaymentRecord) {
	var list []interface{}
	switch v := p["payments"].(type) {
	case []interface{}:
		list = v
	case []map[string]interface{}:
		for _, obj := range v {
			list = append(list, obj)
		}
	}
	p["payments"] = append(list, record.toObject())
}

// MarkProofStatus sets proofStatus on every payment whose reference equals
// reference and returns how many records matched.
func (p Payload) MarkProofStatus(reference, status string) int {
	if reference == "" {
		return 0
	}
	matched := 0
	for _, obj := range p.paymentObjects() {
		if Payload(obj).String("reference") == reference {
			obj["proofStatus"] = status
			matched++
		}
	}
	return matched
}
