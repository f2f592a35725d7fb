package api

import (
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		name        string
		url         string
		wantPage    int
		wantPerPage int
	}{
		{"defaults", "/incidents", 1, 50},
		{"explicit", "/incidents?page=3&per_page=20", 3, 20},
		{"capped", "/incidents?per_page=5000", 1, 200},
		{"malformed", "/incidents?page=abc&per_page=-2", 1, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ParsePagination(httptest.NewRequest("GET", tc.url, nil))
			if p.Page != tc.wantPage || p.PerPage != tc.wantPerPage {
				t.Errorf("got page=%d per_page=%d, want %d/%d", p.Page, p.PerPage, tc.wantPage, tc.wantPerPage)
			}
		})
	}
}

func TestPaginationMath(t *testing.T) {
	p := PaginationParams{Page: 3, PerPage: 20}
	if p.Offset() != 40 {
		t.Errorf("offset: got %d, want 40", p.Offset())
	}
	if got := p.TotalPages(41); got != 3 {
		t.Errorf("total pages for 41 rows: got %d, want 3", got)
	}
	if got := p.TotalPages(40); got != 2 {
		t.Errorf("total pages for 40 rows: got %d, want 2", got)
	}
}
