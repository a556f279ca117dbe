package restapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// queryParams parses optional query values, collecting a message per bad field.
type queryParams struct {
	values url.Values
	errors map[string][]string
}

func newQueryParams(values url.Values) *queryParams {
	return &queryParams{values: values, errors: map[string][]string{}}
}

func (p *queryParams) fail(field, msg string) {
	p.errors[field] = append(p.errors[field], msg)
}

func (p *queryParams) valid() bool {
	return len(p.errors) == 0
}

func (p *queryParams) str(field string) string {
	return strings.TrimSpace(p.values.Get(field))
}

func (p *queryParams) required(field string) string {
	v := p.str(field)
	if v == "" {
		p.fail(field, "is required")
	}
	return v
}

func (p *queryParams) int(field string, def int) int {
	v := p.str(field)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(field, "must be an integer")
		return def
	}
	return n
}

func (p *queryParams) float(field string, def float64, required bool) float64 {
	v := p.str(field)
	if v == "" {
		if required {
			p.fail(field, "is required")
		}
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(field, "must be a number")
		return def
	}
	return f
}

func (p *queryParams) bool(field string) bool {
	v := p.str(field)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(field, "must be true or false")
	}
	return b
}

// minutes reads a whole number of minutes.
func (p *queryParams) minutes(field string, def time.Duration) time.Duration {
	n := p.int(field, -1)
	if n < 0 {
		if p.str(field) != "" {
			p.fail(field, "must not be negative")
		}
		return def
	}
	return time.Duration(n) * time.Minute
}
