package api

import (
	"net/http"
	"strconv"
)

// Incident and event listings default to 50 rows; per_page is capped so a
// tenant with a noisy week cannot pull the whole table in one request.
const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams is the page window requested via query string.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page from the request, falling back to
// the defaults on absent or malformed values.
func ParsePagination(r *http.Request) PaginationParams {
	return PaginationParams{
		Page:    queryInt(r, "page", defaultPage, 0),
		PerPage: queryInt(r, "per_page", defaultPerPage, maxPerPage),
	}
}

func queryInt(r *http.Request, key string, fallback, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

// Offset converts the page window into a row offset for the listing query.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages returns how many pages the total row count spans.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}
