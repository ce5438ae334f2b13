package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-books-etl/models"
)

func TestParseListings(t *testing.T) {
	page := `<html><body>
<div class="s-result-item">
  <h2><a><span class="a-text-normal"> Fundamentals of Data Engineering </span></a></h2>
  <div class="a-row"><a class="a-size-base a-link-normal">Joe Reis</a></div>
  <span class="a-price-whole">45.</span><span class="a-price-fraction">99</span>
  <span class="a-icon-alt">4.7 out of 5 stars</span>
</div>
<div class="s-result-item">
  <h2>Designing Data-Intensive Applications</h2>
  <div class="a-row"><span class="a-size-base">Martin Kleppmann</span></div>
  <span class="a-price-whole">1,299.</span>
  <span class="a-icon-alt">Not rated</span>
</div>
<div class="s-result-item">
  <div class="a-row"><span class="a-size-base">Sponsored</span></div>
</div>
<div class="s-result-item">
  <span class="a-text-normal">Data Pipelines Pocket Reference</span>
</div>
</body></html>`

	books, containers, err := ParseListings([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, 4, containers)

	want := []models.RawBook{
		{Title: "Fundamentals of Data Engineering", Author: "Joe Reis", Price: "45.99", Rating: "4.7"},
		{Title: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", Price: "1,299", Rating: "0"},
		{Title: "Data Pipelines Pocket Reference", Author: models.UnknownAuthor, Price: "0", Rating: "0"},
	}
	if diff := cmp.Diff(want, books); diff != "" {
		t.Errorf("ParseListings() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseListingsNoContainers(t *testing.T) {
	books, containers, err := ParseListings([]byte(`<html><body><p>Sorry, we just need to make sure you're not a robot.</p></body></html>`))
	require.NoError(t, err)
	assert.Zero(t, containers)
	assert.Empty(t, books)
}

func TestIdentityRotatesUserAgents(t *testing.T) {
	id := NewIdentity([]string{"a", "b", "c"}, "")
	picks := []int{2, 0, 1}
	id.intn = func(n int) int {
		assert.Equal(t, 3, n)
		next := picks[0]
		picks = picks[1:]
		return next
	}
	assert.Equal(t, "c", id.UserAgent())
	assert.Equal(t, "a", id.UserAgent())
	assert.Equal(t, "b", id.UserAgent())

	h := make(map[string][]string)
	NewIdentity(nil, "").Apply(h)
	_, hasUA := h["User-Agent"]
	assert.False(t, hasUA)
	_, hasReferer := h["Referer"]
	assert.False(t, hasReferer)
}

func TestJitterBounds(t *testing.T) {
	assert.Equal(t, 3*time.Second, jitter(3*time.Second, time.Second, nil))
	assert.Equal(t, 2*time.Second, jitter(2*time.Second, 5*time.Second, func(int64) int64 { return 0 }))
	assert.Equal(t, 5*time.Second, jitter(2*time.Second, 5*time.Second, func(n int64) int64 { return n - 1 }))

	for range 100 {
		d := jitter(2*time.Second, 5*time.Second, nil)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestTimerPauserHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := timerPauser{}.Pause(ctx, time.Hour)
	require.True(t, errors.Is(err, context.Canceled))
	require.NoError(t, timerPauser{}.Pause(context.Background(), 0))
	require.NoError(t, timerPauser{}.Pause(context.Background(), time.Millisecond))
}
