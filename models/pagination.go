package models

// Pagination beschreibt einen Seitenausschnitt über einer Gesamtmenge.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// NewPagination normalisiert page/page_size (Minimum 1) und berechnet die
// Seitenzahl als Aufrundung von total/page_size.
func NewPagination(page, pageSize int, total int64) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Offset liefert den SQL-Offset für die aktuelle Seite.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
