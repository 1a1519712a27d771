package invoicing

import "time"

// InvoiceStatus is the primary lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusViewed        InvoiceStatus = "viewed"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

// IsValid checks if the status is one of the known values
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the invoice can no longer receive allocations
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// CanBeCancelled reports whether an explicit cancel is allowed
func (s InvoiceStatus) CanBeCancelled() bool {
	return !s.IsTerminal()
}

// OverdueEligibleStatuses are the statuses the sweeper may move to overdue
func OverdueEligibleStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPartiallyPaid}
}

func (s InvoiceStatus) overdueEligible() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusViewed || s == InvoiceStatusPartiallyPaid
}

// StatusTrigger names the event that asks for a status recomputation.
// Money arriving and the calendar advancing are different inputs to the same
// derivation: an allocation recomputes from balance (and clears overdue),
// a sweep only ever adds overdue.
type StatusTrigger int

const (
	TriggerAllocation StatusTrigger = iota
	TriggerSweep
)

// NextStatus is the single derivation of an invoice's status. Every writer
// of Invoice.Status goes through it.
func NextStatus(current InvoiceStatus, balanceDue, total int64, dueDate, today time.Time, trigger StatusTrigger) InvoiceStatus {
	if current.IsTerminal() {
		return current
	}
	if balanceDue == 0 {
		return InvoiceStatusPaid
	}

	switch trigger {
	case TriggerSweep:
		if current.overdueEligible() && balanceDue > 0 && IsPastDue(dueDate, today) {
			return InvoiceStatusOverdue
		}
		return current
	default:
		if balanceDue > 0 && balanceDue < total {
			return InvoiceStatusPartiallyPaid
		}
		return current
	}
}

// IsPastDue compares calendar days in UTC: an invoice due today is not past due
func IsPastDue(dueDate, today time.Time) bool {
	return CalendarDay(dueDate).Before(CalendarDay(today))
}

// CalendarDay truncates t to midnight UTC of its UTC date
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
