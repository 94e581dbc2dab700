// Package pagination turns collection query parameters into a filter and a filtered result set
// into the paging headers of the response.
package pagination

import (
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"cpo/internal/models"
	"cpo/internal/ocpi"
)

const (
	ParamDateFrom = "date_from"
	ParamDateTo   = "date_to"
	ParamOffset   = "offset"
	ParamLimit    = "limit"
	ParamMatch    = "match"
)

// Filter is the parsed form of a collection request. From is exclusive, To inclusive.
type Filter struct {
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  *int
	Match  string
}

// MatchFunc is a resource specific free-text predicate.
type MatchFunc[T any] func(item T, pattern string) bool

// BuildFilter never fails: unparsable or negative values count as absent.
func BuildFilter(q url.Values) Filter {
	var f Filter
	if t, ok := parseTime(q.Get(ParamDateFrom)); ok {
		f.From = &t
	}
	if t, ok := parseTime(q.Get(ParamDateTo)); ok {
		f.To = &t
	}
	if n, ok := parseCount(q.Get(ParamOffset)); ok {
		f.Offset = n
	}
	if n, ok := parseCount(q.Get(ParamLimit)); ok {
		f.Limit = &n
	}
	f.Match = q.Get(ParamMatch)
	return f
}

func parseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// timestamps without a zone are UTC
		t, err = time.Parse("2006-01-02T15:04:05", raw)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t.UTC(), true
}

func parseCount(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// InWindow applies the from/to bounds to a last-updated timestamp.
func (f Filter) InWindow(t time.Time) bool {
	if f.From != nil && !t.After(*f.From) {
		return false
	}
	if f.To != nil && t.After(*f.To) {
		return false
	}
	return true
}

type Page[T any] struct {
	Items         []T
	AllCount      int
	FilteredCount int
}

// Apply filters, sorts by identity and slices items. The input slice is not modified.
func Apply[T models.Resource](items []T, f Filter, match MatchFunc[T]) Page[T] {
	filtered := make([]T, 0, len(items))
	for _, item := range items {
		if f.Match != "" && match != nil && !match(item, f.Match) {
			continue
		}
		if !f.InWindow(item.Updated()) {
			continue
		}
		filtered = append(filtered, item)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Identity().Key() < filtered[j].Identity().Key()
	})

	page := Page[T]{AllCount: len(items), FilteredCount: len(filtered)}
	start := f.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := len(filtered)
	if f.Limit != nil && *f.Limit < end-start {
		end = start + *f.Limit
	}
	page.Items = filtered[start:end]
	return page
}

// HasNext reports whether a further page exists.
func (f Filter) HasNext(allCount int) bool {
	return f.Limit != nil && allCount-f.Offset > *f.Limit
}

// BuildHeaders sets the count headers and, when a further page exists, the next-page link.
func BuildHeaders(baseURL string, allCount, filteredCount int, f Filter) http.Header {
	h := http.Header{}
	h.Set(ocpi.HeaderTotalCount, strconv.Itoa(allCount))
	h.Set(ocpi.HeaderFilteredCount, strconv.Itoa(filteredCount))
	if f.Limit != nil {
		h.Set(ocpi.HeaderLimit, strconv.Itoa(*f.Limit))
	}
	if f.HasNext(allCount) {
		h.Set(ocpi.HeaderLink, "<"+NextURL(baseURL, f)+`>; rel="next"`)
	}
	return h
}

// NextURL is the collection URL of the page after the one described by f.
func NextURL(baseURL string, f Filter) string {
	parts := make([]string, 0, 5)
	if f.From != nil {
		parts = append(parts, ParamDateFrom+"="+url.QueryEscape(f.From.Format(time.RFC3339)))
	}
	if f.To != nil {
		parts = append(parts, ParamDateTo+"="+url.QueryEscape(f.To.Format(time.RFC3339)))
	}
	limit := 0
	if f.Limit != nil {
		limit = *f.Limit
	}
	next := f.Offset + limit
	if next < f.Offset {
		next = math.MaxInt
	}
	parts = append(parts, ParamOffset+"="+strconv.Itoa(next))
	parts = append(parts, ParamLimit+"="+strconv.Itoa(limit))
	if f.Match != "" {
		parts = append(parts, ParamMatch+"="+url.QueryEscape(f.Match))
	}
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + strings.Join(parts, "&")
}
