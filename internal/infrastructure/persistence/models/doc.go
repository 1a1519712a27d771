// Package models contains the GORM persistence models for the invoicing
// tables. Domain types carry no ORM tags; each model converts with ToDomain
// and FromDomain.
//
//   - invoices, invoice_line_items: the ledger (invoicing.go)
//   - payments, payment_allocations: immutable payment records (payment.go)
//   - receipt_snapshots: write-once hashed receipts (receipt.go)
package models
