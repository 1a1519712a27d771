package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
)

// CustomerColumns is the customer snapshot embedded in the invoice row
type CustomerColumns struct {
	Name  string `gorm:"type:varchar(200);not null"`
	Email string `gorm:"type:varchar(254)"`
	Phone string `gorm:"type:varchar(32)"`
}

// InvoiceModel is the persistence model for the Invoice aggregate root
type InvoiceModel struct {
	TenantAggregateModel
	InvoiceNumber string                  `gorm:"type:varchar(50);not null;index"`
	PublicID      string                  `gorm:"type:varchar(32);not null;uniqueIndex"`
	Status        invoicing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'draft';index:idx_invoice_status_due,priority:1"`
	Currency      valueobject.Currency    `gorm:"type:varchar(3);not null"`
	SubtotalMinor int64                   `gorm:"not null"`
	DiscountMinor int64                   `gorm:"not null;default:0"`
	TaxMinor      int64                   `gorm:"not null;default:0"`
	TotalMinor    int64                   `gorm:"not null"`
	BalanceDue    int64                   `gorm:"column:balance_due_minor;not null"`
	IssueDate     time.Time               `gorm:"type:date;not null"`
	DueDate       time.Time               `gorm:"type:date;not null;index:idx_invoice_status_due,priority:2"`
	Customer      CustomerColumns         `gorm:"embedded;embeddedPrefix:customer_"`
	SentAt        *time.Time
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CancelReason  string                 `gorm:"type:varchar(500)"`
	LineItems     []InvoiceLineItemModel `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *invoicing.Invoice {
	items := make([]invoicing.LineItem, len(m.LineItems))
	for i, li := range m.LineItems {
		items[i] = li.ToDomain()
	}
	return &invoicing.Invoice{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		InvoiceNumber:       m.InvoiceNumber,
		PublicID:            m.PublicID,
		Status:              m.Status,
		Currency:            m.Currency,
		SubtotalMinor:       m.SubtotalMinor,
		DiscountMinor:       m.DiscountMinor,
		TaxMinor:            m.TaxMinor,
		TotalMinor:          m.TotalMinor,
		BalanceDue:          m.BalanceDue,
		IssueDate:           m.IssueDate.UTC(),
		DueDate:             m.DueDate.UTC(),
		Customer: invoicing.Customer{
			Name:  m.Customer.Name,
			Email: m.Customer.Email,
			Phone: m.Customer.Phone,
		},
		LineItems:    items,
		SentAt:       m.SentAt,
		PaidAt:       m.PaidAt,
		CancelledAt:  m.CancelledAt,
		CancelReason: m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *invoicing.Invoice) {
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.PublicID = inv.PublicID
	m.Status = inv.Status
	m.Currency = inv.Currency
	m.SubtotalMinor = inv.SubtotalMinor
	m.DiscountMinor = inv.DiscountMinor
	m.TaxMinor = inv.TaxMinor
	m.TotalMinor = inv.TotalMinor
	m.BalanceDue = inv.BalanceDue
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate
	m.Customer = CustomerColumns{
		Name:  inv.Customer.Name,
		Email: inv.Customer.Email,
		Phone: inv.Customer.Phone,
	}
	m.SentAt = inv.SentAt
	m.PaidAt = inv.PaidAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
	m.LineItems = make([]InvoiceLineItemModel, len(inv.LineItems))
	for i, li := range inv.LineItems {
		m.LineItems[i].FromDomain(inv.ID, li)
	}
}

// InvoiceModelFromDomain creates a new InvoiceModel from a domain Invoice
func InvoiceModelFromDomain(inv *invoicing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// InvoiceLineItemModel is one row of invoice_line_items. Lines are written
// with the invoice and never updated.
type InvoiceLineItemModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	InvoiceID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_line_invoice_position,priority:1"`
	Position       int       `gorm:"not null;uniqueIndex:idx_line_invoice_position,priority:2"`
	Description    string    `gorm:"type:varchar(500);not null"`
	Quantity       int64     `gorm:"not null"`
	UnitPriceMinor int64     `gorm:"not null"`
	LineTotalMinor int64     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceLineItemModel) TableName() string {
	return "invoice_line_items"
}

// ToDomain converts the row to a domain LineItem
func (m *InvoiceLineItemModel) ToDomain() invoicing.LineItem {
	return invoicing.LineItem{
		Position:       m.Position,
		Description:    m.Description,
		Quantity:       m.Quantity,
		UnitPriceMinor: m.UnitPriceMinor,
		LineTotalMinor: m.LineTotalMinor,
	}
}

// FromDomain populates the row from a domain LineItem
func (m *InvoiceLineItemModel) FromDomain(invoiceID uuid.UUID, li invoicing.LineItem) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.InvoiceID = invoiceID
	m.Position = li.Position
	m.Description = li.Description
	m.Quantity = li.Quantity
	m.UnitPriceMinor = li.UnitPriceMinor
	m.LineTotalMinor = li.LineTotalMinor
}
