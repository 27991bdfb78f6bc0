package user

// Pagination represents pagination information for list responses.
type Pagination struct {
	Total      int64 `json:"total"`       // Total number of records matching the query
	Page       int64 `json:"page"`        // Current page number (1-based)
	Limit      int64 `json:"limit"`       // Number of records per page
	TotalPages int64 `json:"total_pages"` // Total number of pages
}

// NewPagination creates a new Pagination instance with calculated total pages.
func NewPagination(total, page, limit int64) *Pagination {
	var totalPages int64
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return &Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

// Offset returns the number of records to skip for the current page.
func (p *Pagination) Offset() int64 {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}
