package pagination

import (
	"net/url"
	"strconv"
)

const (
	// DefaultPageSize matches the upstream food-data API convention.
	DefaultPageSize = 24

	// MaxPageSize bounds a single page so a caller cannot request the whole
	// table in one round trip.
	MaxPageSize = 100
)

// Params holds resolved pagination parameters. Page and PageSize are always
// at least 1.
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Default returns page 1 with the default page size.
func Default() Params {
	return Params{Page: 1, PageSize: DefaultPageSize}
}

// FromValues extracts page and page_size from query parameters. Non-numeric
// or non-positive input falls back to the defaults; it never fails and never
// produces a negative offset. Page sizes above MaxPageSize are clamped.
func FromValues(values url.Values) Params {
	p := Default()

	if raw := values.Get("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			p.Page = v
		}
	}

	if raw := values.Get("page_size"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			p.PageSize = v
			if p.PageSize > MaxPageSize {
				p.PageSize = MaxPageSize
			}
		}
	}

	return p
}

// Clamp forces both fields to valid values. Useful when a Params was built
// by hand rather than through FromValues.
func (p *Params) Clamp() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

// Offset returns the start of the half-open row range
// [(page-1)*page_size, page*page_size).
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit returns the length of the row range.
func (p Params) Limit() int {
	return p.PageSize
}
