package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/hash/xxh3"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func newTestCache(max int, ttl time.Duration) (*ResultCache, *fakeClock) {
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(Config{TTL: ttl, MaxEntries: max, Hasher: xxh3.New(), Logger: zap.NewNop()})
	c.now = clk.Now
	return c, clk
}

func emailVerdict(item string, valid bool) validation.Verdict {
	v := validation.Verdict{
		Item:  item,
		Kind:  validation.KindEmail,
		Valid: valid,
		Email: &validation.EmailDetails{SyntaxOK: true, MXRecords: []string{"mx.example.com"}},
	}
	if !valid {
		v.Fail(validation.ReasonDomainNotFound, "")
	}
	return v
}

func TestGetSetRoundTrip(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(10, time.Minute)

	_, ok := c.Get(validation.KindEmail, "a@example.com")
	require.False(t, ok)

	c.Set(validation.KindEmail, "a@example.com", emailVerdict("a@example.com", true))
	got, ok := c.Get(validation.KindEmail, "a@example.com")
	require.True(t, ok)
	require.True(t, got.Cached)
	require.True(t, got.Valid)

	_, ok = c.Get(validation.KindPhone, "a@example.com")
	require.False(t, ok, "kind is part of the key")
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(10, time.Minute)

	c.Set(validation.KindEmail, "a@example.com", emailVerdict("a@example.com", true))
	first, _ := c.Get(validation.KindEmail, "a@example.com")
	first.Email.MXRecords[0] = "mutated"

	second, _ := c.Get(validation.KindEmail, "a@example.com")
	require.Equal(t, "mx.example.com", second.Email.MXRecords[0])
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(10, time.Minute)

	c.Set(validation.KindEmail, "a@example.com", emailVerdict("a@example.com", false))
	clk.now = clk.now.Add(59 * time.Second)
	_, ok := c.Get(validation.KindEmail, "a@example.com")
	require.True(t, ok)

	clk.now = clk.now.Add(2 * time.Second)
	_, ok = c.Get(validation.KindEmail, "a@example.com")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestEvictionDropsOldestTenthByAccess(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(20, time.Hour)

	for i := 0; i < 20; i++ {
		clk.now = clk.now.Add(time.Second)
		item := fmt.Sprintf("u%d@example.com", i)
		c.Set(validation.KindEmail, item, emailVerdict(item, true))
	}
	// Touch the two oldest so u2 and u3 become the least recently used.
	clk.now = clk.now.Add(time.Second)
	_, ok := c.Get(validation.KindEmail, "u0@example.com")
	require.True(t, ok)
	_, ok = c.Get(validation.KindEmail, "u1@example.com")
	require.True(t, ok)

	clk.now = clk.now.Add(time.Second)
	c.Set(validation.KindEmail, "new@example.com", emailVerdict("new@example.com", true))

	require.Equal(t, 19, c.Len())
	for _, item := range []string{"u2@example.com", "u3@example.com"} {
		_, ok := c.Get(validation.KindEmail, item)
		require.False(t, ok, item)
	}
	for _, item := range []string{"u0@example.com", "u1@example.com", "u4@example.com", "new@example.com"} {
		_, ok := c.Get(validation.KindEmail, item)
		require.True(t, ok, item)
	}
}

func TestTransientVerdictsAreNotCached(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(10, time.Minute)

	c.Set(validation.KindEmail, "slow@example.com", validation.TimeoutVerdict(validation.KindEmail, "slow@example.com", time.Second))
	c.Set(validation.KindEmail, "boom@example.com", validation.ProcessingErrorVerdict(validation.KindEmail, "boom@example.com", "boom"))
	require.Equal(t, 0, c.Len())
}

type failingHasher struct{}

func (failingHasher) Hash([]byte) (string, error) { return "", errors.New("no hash") }

func TestHashFailureBypassesCache(t *testing.T) {
	t.Parallel()
	c := New(Config{Hasher: failingHasher{}})

	c.Set(validation.KindEmail, "a@example.com", emailVerdict("a@example.com", true))
	_, ok := c.Get(validation.KindEmail, "a@example.com")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}
