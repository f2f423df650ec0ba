package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMarketMetrics(t *testing.T) {
	m := Market()
	require.Same(t, m, Market())

	m.ObserveTransaction("claim_payment", "accepted")
	m.ObserveTransaction("claim_payment", "accepted")
	require.Equal(t, 2.0, testutil.ToFloat64(m.transactions.WithLabelValues("claim_payment", "accepted")))

	m.SetLocked(big.NewInt(1_085_760))
	require.Equal(t, 1_085_760.0, testutil.ToFloat64(m.locked))
	m.SetHeight(9)
	require.Equal(t, 9.0, testutil.ToFloat64(m.height))
}

func TestRPCMetrics(t *testing.T) {
	m := RPC()
	m.Observe("market_getContract", "ok", 5*time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("market_getContract", "ok")))
	m.Throttled()
	require.Equal(t, 1.0, testutil.ToFloat64(m.throttle))

	var nilMetrics *RPCMetrics
	nilMetrics.Observe("x", "y", time.Second)
}
