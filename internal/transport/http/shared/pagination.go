package shared

import (
	"net/http"
	"strconv"
)

type Page struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query. Malformed or
// negative values fall back to the defaults; limit is clamped to maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	page := Page{Limit: defaultLimit}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		page.Limit = min(n, maxLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		page.Offset = n
	}
	return page
}

// WriteTotal exposes the unpaginated count alongside a page of results.
func WriteTotal(w http.ResponseWriter, page Page, total int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	if next := page.Offset + page.Limit; next < total {
		w.Header().Set("X-Next-Offset", strconv.Itoa(next))
	}
}
