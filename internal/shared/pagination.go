package shared

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// PaginationFromPages builds metadata when the page count is already known.
func PaginationFromPages(page, totalPages, perPage, total int) Pagination {
	if totalPages < 0 {
		totalPages = 0
	}
	return Pagination{Page: ClampPage(page, totalPages), PerPage: perPage, Total: total, TotalPages: totalPages}
}

// ClampPage keeps page within [1, totalPages]. An empty listing still has page 1.
func ClampPage(page, totalPages int) int {
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Show reports whether pagination controls should be rendered at all.
func (p Pagination) Show() bool {
	return p.TotalPages > 1
}

// HasPrev reports whether the previous control is enabled.
func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether the next control is enabled.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}

// PrevPage returns the target of the previous control.
func (p Pagination) PrevPage() int {
	if !p.HasPrev() {
		return p.Page
	}
	return p.Page - 1
}

// NextPage returns the target of the next control.
func (p Pagination) NextPage() int {
	if !p.HasNext() {
		return p.Page
	}
	return p.Page + 1
}

// Pages lists every reachable page number.
func (p Pagination) Pages() []int {
	pages := make([]int, 0, p.TotalPages)
	for i := 1; i <= p.TotalPages; i++ {
		pages = append(pages, i)
	}
	return pages
}
