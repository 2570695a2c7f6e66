package service

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Moxx-Company/validator-pro/internal/resolver"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

type countingLookup struct {
	ipCalls atomic.Int32
}

func (c *countingLookup) LookupIP(context.Context, string, string) ([]net.IP, error) {
	c.ipCalls.Add(1)
	return []net.IP{net.IPv4(192, 0, 2, 1)}, nil
}

func (c *countingLookup) LookupMX(context.Context, string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx.example.com.", Pref: 10}}, nil
}

type acceptAll struct{}

func (acceptAll) Probe(context.Context, string, string) bool { return true }

func TestFactoryScopesDNSMemoToOneJob(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{}
	f := &Factory{DNS: resolver.Config{Lookup: lookup}, Prober: acceptAll{}}

	first, err := f.NewValidator(validation.KindEmail)
	require.NoError(t, err)
	require.True(t, first.Validate(context.Background(), "a@example.com").Valid)
	require.True(t, first.Validate(context.Background(), "b@example.com").Valid)
	require.Equal(t, int32(1), lookup.ipCalls.Load(), "memoized within one validator")

	second, err := f.NewValidator(validation.KindEmail)
	require.NoError(t, err)
	require.True(t, second.Validate(context.Background(), "c@example.com").Valid)
	require.Equal(t, int32(2), lookup.ipCalls.Load(), "fresh memo for the next job")
}

func TestFactoryRejectsMissingCollaborators(t *testing.T) {
	t.Parallel()

	f := &Factory{}
	_, err := f.NewValidator(validation.KindEmail)
	require.ErrorContains(t, err, "smtp prober")
	_, err = f.NewValidator(validation.KindPhone)
	require.ErrorContains(t, err, "phone validator")
	_, err = f.NewValidator(validation.Kind("fax"))
	require.ErrorContains(t, err, "unsupported kind")

	phone := &prefixValidator{kind: validation.KindPhone}
	f.Phone = phone
	v, err := f.NewValidator(validation.KindPhone)
	require.NoError(t, err)
	require.Same(t, phone, v)
}
