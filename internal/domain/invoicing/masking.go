package invoicing

import (
	"strings"
	"unicode/utf8"
)

// MaskName keeps the first letter of each word: "Ada Obi" -> "A** O**"
func MaskName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		rest := utf8.RuneCountInString(w[size:])
		words[i] = string(r) + strings.Repeat("*", max(rest, 2))
	}
	return strings.Join(words, " ")
}

// MaskEmail keeps the first character of the local part and the domain
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskName(email)
	}
	r, _ := utf8.DecodeRuneInString(email)
	return string(r) + "***" + email[at:]
}

// MaskPhone keeps the last four digits
func MaskPhone(phone string) string {
	var digits []rune
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
}

// MaskParty masks every populated field of p
func MaskParty(p ReceiptParty) ReceiptParty {
	masked := ReceiptParty{}
	if p.Name != "" {
		masked.Name = MaskName(p.Name)
	}
	if p.Email != "" {
		masked.Email = MaskEmail(p.Email)
	}
	if p.Phone != "" {
		masked.Phone = MaskPhone(p.Phone)
	}
	return masked
}

// PublicReceiptView is the read-only public shape of a receipt. It carries the
// hash tail, never the full digest, and masked payer details.
type PublicReceiptView struct {
	ReceiptNumber string            `json:"receipt_number"`
	InvoiceNumber string            `json:"invoice_number"`
	Currency      string            `json:"currency"`
	IssueDate     string            `json:"issue_date"`
	Issuer        string            `json:"issuer"`
	LineItems     []ReceiptLineItem `json:"line_items"`
	Totals        ReceiptTotals     `json:"totals"`
	Payments      []ReceiptPayment  `json:"payments"`
	HashTail      string            `json:"hash_tail"`
	IssuedAt      string            `json:"issued_at"`
}

// NewPublicReceiptView builds the public view from stored receipt content
func NewPublicReceiptView(snapshot *ReceiptSnapshot, data *ReceiptHashData) PublicReceiptView {
	payments := make([]ReceiptPayment, len(data.Payments))
	for i, p := range data.Payments {
		payments[i] = ReceiptPayment{
			PaymentID:   p.PaymentID,
			AmountMinor: p.AmountMinor,
			Method:      p.Method,
			PaymentDate: p.PaymentDate,
			Payer:       MaskParty(p.Payer),
		}
	}
	return PublicReceiptView{
		ReceiptNumber: snapshot.ReceiptNumber,
		InvoiceNumber: data.Invoice.Number,
		Currency:      data.Invoice.Currency,
		IssueDate:     data.Invoice.IssueDate,
		Issuer:        data.Issuer.Name,
		LineItems:     data.LineItems,
		Totals:        data.Totals,
		Payments:      payments,
		HashTail:      snapshot.HashTail,
		IssuedAt:      data.CreatedAt,
	}
}
