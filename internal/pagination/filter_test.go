package pagination

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpo/internal/models"
	"cpo/internal/ocpi"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func locations(n int) []models.Location {
	out := make([]models.Location, 0, n)
	// inserted in reverse order so Apply has to sort
	for i := n - 1; i >= 0; i-- {
		out = append(out, models.Location{
			CountryCode: "DE",
			PartyID:     "CPO",
			ID:          fmt.Sprintf("LOC%03d", i),
			City:        fmt.Sprintf("City%d", i%3),
			LastUpdated: base.Add(time.Duration(i) * time.Hour),
		})
	}
	return out
}

func intPtr(n int) *int { return &n }

func TestBuildFilterParsesValues(t *testing.T) {
	q := url.Values{}
	q.Set("date_from", "2024-01-01T00:00:00Z")
	q.Set("date_to", "2024-02-01T00:00:00Z")
	q.Set("offset", "10")
	q.Set("limit", "25")
	q.Set("match", "Berlin")

	f := BuildFilter(q)
	require.NotNil(t, f.From)
	require.NotNil(t, f.To)
	require.NotNil(t, f.Limit)
	assert.Equal(t, base, *f.From)
	assert.Equal(t, 10, f.Offset)
	assert.Equal(t, 25, *f.Limit)
	assert.Equal(t, "Berlin", f.Match)
}

func TestBuildFilterTreatsInvalidValuesAsAbsent(t *testing.T) {
	q := url.Values{}
	q.Set("date_from", "yesterday")
	q.Set("offset", "-3")
	q.Set("limit", "ten")

	f := BuildFilter(q)
	assert.Nil(t, f.From)
	assert.Nil(t, f.To)
	assert.Equal(t, 0, f.Offset)
	assert.Nil(t, f.Limit)
}

func TestBuildFilterKeepsZeroLimit(t *testing.T) {
	f := BuildFilter(url.Values{"limit": {"0"}})
	require.NotNil(t, f.Limit)
	assert.Equal(t, 0, *f.Limit)

	page := Apply(locations(5), f, nil)
	assert.Empty(t, page.Items)
	assert.Equal(t, 5, page.AllCount)
}

func TestApplyPageSizeAndLinkPresence(t *testing.T) {
	for _, n := range []int{0, 1, 7, 20} {
		items := locations(n)
		for o := 0; o <= n+2; o++ {
			for l := 0; l <= n+2; l++ {
				f := Filter{Offset: o, Limit: intPtr(l)}
				page := Apply(items, f, nil)

				want := l
				if rest := n - o; rest < want {
					want = rest
				}
				if want < 0 {
					want = 0
				}
				assert.Len(t, page.Items, want, "n=%d o=%d l=%d", n, o, l)

				h := BuildHeaders("https://cpo.example.com/locations", page.AllCount, page.FilteredCount, f)
				assert.Equal(t, n > o+l, h.Get(ocpi.HeaderLink) != "", "n=%d o=%d l=%d", n, o, l)
			}
		}
	}
}

func TestApplySortsByIdentity(t *testing.T) {
	page := Apply(locations(5), Filter{}, nil)
	require.Len(t, page.Items, 5)
	for i := 1; i < len(page.Items); i++ {
		assert.Less(t, page.Items[i-1].ID, page.Items[i].ID)
	}
}

func TestApplyTimeWindowIsHalfOpen(t *testing.T) {
	from := base.Add(2 * time.Hour)
	to := base.Add(4 * time.Hour)
	page := Apply(locations(10), Filter{From: &from, To: &to}, nil)

	ids := make([]string, 0, len(page.Items))
	for _, l := range page.Items {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"LOC003", "LOC004"}, ids)
	assert.Equal(t, 10, page.AllCount)
	assert.Equal(t, 2, page.FilteredCount)
}

func TestApplyMatchPredicate(t *testing.T) {
	page := Apply(locations(9), Filter{Match: "City1"}, models.MatchLocation)
	assert.Equal(t, 3, page.FilteredCount)
	for _, l := range page.Items {
		assert.Equal(t, "City1", l.City)
	}

	page = Apply(locations(9), Filter{Match: "city1"}, models.MatchLocation)
	assert.Equal(t, 0, page.FilteredCount, "matching is case sensitive")
}

func TestBuildHeadersFirstPageOfHundredTwenty(t *testing.T) {
	f := BuildFilter(url.Values{"limit": {"50"}})
	page := Apply(locations(120), f, nil)
	h := BuildHeaders("https://cpo.example.com/ocpi/2.2/cpo/locations", page.AllCount, page.FilteredCount, f)

	assert.Len(t, page.Items, 50)
	assert.Equal(t, "120", h.Get(ocpi.HeaderTotalCount))
	assert.Equal(t, "120", h.Get(ocpi.HeaderFilteredCount))
	assert.Equal(t, "50", h.Get(ocpi.HeaderLimit))
	assert.Equal(t, `<https://cpo.example.com/ocpi/2.2/cpo/locations?offset=50&limit=50>; rel="next"`, h.Get(ocpi.HeaderLink))
}

func TestNextURLReusesWindowAndMatch(t *testing.T) {
	from := base
	f := Filter{From: &from, Offset: 20, Limit: intPtr(10), Match: "a b"}
	next := NextURL("https://cpo.example.com/tariffs", f)

	assert.True(t, strings.HasPrefix(next, "https://cpo.example.com/tariffs?date_from=2024-01-01T00%3A00%3A00Z"))
	assert.Contains(t, next, "offset=30&limit=10")
	assert.Contains(t, next, "match=a+b")
}

func TestBuildHeadersWithoutLimit(t *testing.T) {
	h := BuildHeaders("https://cpo.example.com/cdrs", 3, 2, Filter{})
	assert.Equal(t, "3", h.Get(ocpi.HeaderTotalCount))
	assert.Equal(t, "2", h.Get(ocpi.HeaderFilteredCount))
	assert.Empty(t, h.Get(ocpi.HeaderLimit))
	assert.Empty(t, h.Get(ocpi.HeaderLink))
}

func TestHugeLimitDoesNotOverflow(t *testing.T) {
	f := BuildFilter(url.Values{"offset": {"1"}, "limit": {strconv.Itoa(math.MaxInt)}})
	require.NotNil(t, f.Limit)

	page := Apply(locations(3), f, nil)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "LOC001", page.Items[0].ID)
	assert.False(t, f.HasNext(page.AllCount))

	h := BuildHeaders("https://cpo.example.com/locations", page.AllCount, page.FilteredCount, f)
	assert.Empty(t, h.Get(ocpi.HeaderLink))

	next := NextURL("https://cpo.example.com/locations", Filter{Offset: 5, Limit: intPtr(math.MaxInt)})
	assert.Contains(t, next, "offset="+strconv.Itoa(math.MaxInt)+"&")
}
