package sync

import (
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Jovicsi/flowminds.ai/pkg/observability"
)

func testutilValue(m *observability.Metrics, reason string) float64 {
	return testutil.ToFloat64(m.RemoteDropped.WithLabelValues(reason))
}
