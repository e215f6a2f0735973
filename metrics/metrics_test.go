package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/backend/memory"
	"github.com/adeilh/omnikv/kv"
)

func TestCollectorCountsStoreOperations(t *testing.T) {
	c := New("")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, c.Register(reg))

	now := time.Now()
	clock := func() time.Time { return now }
	s, err := kv.New(memory.New(), kv.WithObserver(c), kv.WithExpiry(time.Second), kv.WithClock(clock))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
	_, _, err = s.Lookup(ctx, "missing")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, _, err = s.Lookup(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("set", kv.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("get", kv.ResultHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("lookup", kv.ResultMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.expired))

	expected := `
# HELP omnikv_expired_total Expired entries purged on access or by a sweep
# TYPE omnikv_expired_total counter
omnikv_expired_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "omnikv_expired_total"))
	assert.Equal(t, 3, testutil.CollectAndCount(c, "omnikv_operation_duration_seconds"))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New("x").Register(reg))
	assert.Error(t, New("x").Register(reg))
}
