package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit defines the fallback number of items returned when the client omits limit.
	DefaultLimit = 20
	// DefaultMaxLimit caps the supported limit to prevent unbounded queries.
	DefaultMaxLimit = 100
)

// Order describes a single order-by clause.
type Order struct {
	Field string
	Desc  bool
}

// Params bundles the page, limit, and sorting values extracted from a request.
type Params struct {
	Page   int
	Limit  int
	Orders []Order
}

// Offset returns the number of items to skip for the requested page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Options control how Parse behaves for a given handler layer.
type Options struct {
	DefaultLimit       int
	MaxLimit           int
	AllowedOrderFields []string
}

var (
	ErrInvalidPage    = errors.New("pagination: invalid page")
	ErrInvalidLimit   = errors.New("pagination: invalid limit")
	ErrInvalidOrderBy = errors.New("pagination: invalid orderBy")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params representation.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	page, err := parsePage(values.Get("page"))
	if err != nil {
		return Params{}, err
	}

	limit, err := parseLimit(values.Get("limit"), opts)
	if err != nil {
		return Params{}, err
	}

	orders, err := parseOrder(values["orderBy"], opts.AllowedOrderFields)
	if err != nil {
		return Params{}, err
	}

	return Params{Page: page, Limit: limit, Orders: orders}, nil
}

func parsePage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPage, raw)
	}
	if page < 1 {
		return 0, fmt.Errorf("%w: must be at least 1", ErrInvalidPage)
	}
	return page, nil
}

func parseLimit(raw string, opts Options) (int, error) {
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimit, raw)
	}
	if limit < 1 {
		return 0, fmt.Errorf("%w: must be at least 1", ErrInvalidLimit)
	}
	if limit > maxLimit {
		return 0, fmt.Errorf("%w: exceeds maximum of %d", ErrInvalidLimit, maxLimit)
	}
	return limit, nil
}

func parseOrder(raw []string, allowed []string) ([]Order, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, field := range allowed {
		allowedSet[field] = struct{}{}
	}

	var orders []Order
	for _, value := range raw {
		for _, clause := range strings.Split(value, ",") {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}

			parts := strings.Fields(clause)
			if len(parts) > 2 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidOrderBy, clause)
			}

			order := Order{Field: parts[0]}
			if len(parts) == 2 {
				switch strings.ToLower(parts[1]) {
				case "asc":
				case "desc":
					order.Desc = true
				default:
					return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidOrderBy, parts[1])
				}
			}

			if len(allowedSet) > 0 {
				if _, ok := allowedSet[order.Field]; !ok {
					return nil, fmt.Errorf("%w: field %q not sortable", ErrInvalidOrderBy, order.Field)
				}
			}
			orders = append(orders, order)
		}
	}
	return orders, nil
}
