package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the page size used when the client omits limit.
	DefaultLimit = 20
	// DefaultMaxLimit caps the supported limit to prevent unbounded queries.
	DefaultMaxLimit = 100
	// MaxPage bounds page numbers so offsets stay well inside int range.
	MaxPage = 100000
)

// Params bundles page-number pagination and sorting values extracted from a request.
type Params struct {
	Page  int
	Limit int
	Sort  string
	Desc  bool
}

// Offset returns the number of records skipped before the current page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultLimit      int
	MaxLimit          int
	AllowedSortFields []string
	DefaultSort       string
	DefaultAscending  bool
}

var (
	ErrInvalidPage  = errors.New("pagination: invalid page")
	ErrInvalidLimit = errors.New("pagination: invalid limit")
	ErrInvalidSort  = errors.New("pagination: invalid sort")
	ErrInvalidOrder = errors.New("pagination: invalid order")
)

// Parse consumes page, limit, sort and order from values.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	page, err := parsePositive(values.Get("page"), 1)
	if err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	if page > MaxPage {
		return Params{}, fmt.Errorf("%w: must be <= %d, got %d", ErrInvalidPage, MaxPage, page)
	}

	limit, err := parseLimit(values.Get("limit"), opts)
	if err != nil {
		return Params{}, err
	}

	sortField, err := parseSort(values.Get("sort"), opts)
	if err != nil {
		return Params{}, err
	}

	desc := !opts.DefaultAscending
	switch strings.ToLower(strings.TrimSpace(values.Get("order"))) {
	case "":
	case "asc":
		desc = false
	case "desc":
		desc = true
	default:
		return Params{}, fmt.Errorf("%w: %q", ErrInvalidOrder, values.Get("order"))
	}

	return Params{Page: page, Limit: limit, Sort: sortField, Desc: desc}, nil
}

func parsePositive(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 1 {
		return 0, fmt.Errorf("must be >= 1, got %d", value)
	}
	return value, nil
}

func parseLimit(raw string, opts Options) (int, error) {
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	limit, err := parsePositive(raw, defaultLimit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLimit, err)
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func parseSort(raw string, opts Options) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return opts.DefaultSort, nil
	}
	if len(opts.AllowedSortFields) == 0 {
		return raw, nil
	}
	for _, allowed := range opts.AllowedSortFields {
		if raw == allowed {
			return raw, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSort, raw)
}
