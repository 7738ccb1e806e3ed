package model

import "time"

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 1000
)

// Response is the envelope every debug API endpoint answers with. Status is
// "ok" or "error"; exactly one of Data and Error is meaningful.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination describes the window a list response covers.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions selects a window of runs or events.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns the first page.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: DefaultPageSize}
}

// Clamp pulls Limit into [1, MaxPageSize] (non-positive means the default)
// and Offset to at least 0.
func (o *ListOptions) Clamp() {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		o.Limit = MaxPageSize
	}
	o.Offset = max(o.Offset, 0)
}

// Page returns the pagination block for a window of o over total items.
func (o ListOptions) Page(total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+o.Limit < total,
	}
}
