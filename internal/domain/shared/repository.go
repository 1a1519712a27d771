package shared

// Page describes a bounded listing request
type Page struct {
	Page     int
	PageSize int
}

// DefaultPage returns page 1 with 20 items
func DefaultPage() Page {
	return Page{Page: 1, PageSize: 20}
}

// Offset returns the row offset for the page
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the page size clamped to 1..100
func (p Page) Limit() int {
	switch {
	case p.PageSize < 1:
		return 20
	case p.PageSize > 100:
		return 100
	default:
		return p.PageSize
	}
}

// Paginated represents a paginated result
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginated creates a new paginated result
func NewPaginated[T any](items []T, total int64, page Page) Paginated[T] {
	size := page.Limit()
	totalPages := int(total) / size
	if int(total)%size > 0 {
		totalPages++
	}
	return Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       max(page.Page, 1),
		PageSize:   size,
		TotalPages: totalPages,
	}
}
