package dto

import (
	"encoding/json"
	"time"

	"github.com/invoicing/backend/internal/domain/invoicing"
)

// ReceiptResponse is the internal view of a stored receipt, including the
// canonical text exactly as it was hashed.
type ReceiptResponse struct {
	ID                string          `json:"id"`
	PaymentID         string          `json:"payment_id"`
	InvoiceID         string          `json:"invoice_id"`
	ReceiptNumber     string          `json:"receipt_number"`
	SchemaVersion     int             `json:"schema_version"`
	SHA256Hash        string          `json:"sha256_hash"`
	HashTail          string          `json:"hash_tail"`
	CanonicalSnapshot json.RawMessage `json:"canonical_snapshot"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ToReceiptResponse maps a receipt snapshot
func ToReceiptResponse(r *invoicing.ReceiptSnapshot) ReceiptResponse {
	return ReceiptResponse{
		ID:                r.ID.String(),
		PaymentID:         r.PaymentID.String(),
		InvoiceID:         r.InvoiceID.String(),
		ReceiptNumber:     r.ReceiptNumber,
		SchemaVersion:     r.SchemaVersion,
		SHA256Hash:        r.SHA256Hash,
		HashTail:          r.HashTail,
		CanonicalSnapshot: json.RawMessage(r.CanonicalSnapshot),
		CreatedAt:         r.CreatedAt,
	}
}

// VerifyReceiptRequest asks whether data hashes to hash
type VerifyReceiptRequest struct {
	Data invoicing.ReceiptHashData `json:"data" binding:"required"`
	Hash string                    `json:"hash" binding:"required,len=64,hexadecimal"`
}

// VerificationResponse is the verdict of a verification
type VerificationResponse struct {
	Valid        bool   `json:"valid"`
	ComputedHash string `json:"computed_hash,omitempty"`
}

// AuditResponse is the verdict of re-hashing a stored receipt
type AuditResponse struct {
	ReceiptID    string `json:"receipt_id"`
	Valid        bool   `json:"valid"`
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
}

// PublicVerifyRequest carries the hash a third party wants checked
type PublicVerifyRequest struct {
	Hash string `form:"hash" binding:"required,len=64,hexadecimal"`
}
