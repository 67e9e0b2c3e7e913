package domain

const (
	// DefaultPageSize matches the listing size of the web client.
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// PageRequest carries the requested page (1-based) and page size.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps page to >= 1 and page size into 1..MaxPageSize.
// A zero page size selects DefaultPageSize.
func (r PageRequest) Normalize() PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.PageSize == 0:
		r.PageSize = DefaultPageSize
	case r.PageSize < 1:
		r.PageSize = 1
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}
	return r
}

// Offset is the zero-based position of the first row of the page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// Page is the shared paginated result shape. An empty result has TotalPages 0.
type Page[T any] struct {
	Items       []T  `json:"items"`
	TotalCount  int  `json:"totalCount"`
	TotalPages  int  `json:"totalPages"`
	CurrentPage int  `json:"currentPage"`
	HasMore     bool `json:"hasMore"`
}

// NewPage builds a page for an already-sliced set of items.
func NewPage[T any](items []T, totalCount int, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if req.PageSize > 0 {
		totalPages = (totalCount + req.PageSize - 1) / req.PageSize
	}
	return Page[T]{
		Items:       items,
		TotalCount:  totalCount,
		TotalPages:  totalPages,
		CurrentPage: req.Page,
		HasMore:     req.Page < totalPages,
	}
}
