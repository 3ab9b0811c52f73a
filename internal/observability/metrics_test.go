package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	m := <-ch
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func TestRecordSave(t *testing.T) {
	before := counterValue(t, savesCounter.WithLabelValues("shared", "ok"))
	ts := time.Unix(1_700_000_000, 0)
	RecordSave("shared", true, ts)
	RecordSave("shared", false, ts.Add(time.Hour))

	require.Equal(t, before+1, counterValue(t, savesCounter.WithLabelValues("shared", "ok")))
	require.Equal(t, float64(ts.Unix()), counterValue(t, lastSavedGauge))
}

func TestRecordPurgeAndExternalChange(t *testing.T) {
	purges := counterValue(t, purgesCounter.WithLabelValues("checksum_mismatch"))
	RecordPurge("checksum_mismatch")
	require.Equal(t, purges+1, counterValue(t, purgesCounter.WithLabelValues("checksum_mismatch")))

	unknown := counterValue(t, externalChangesCounter.WithLabelValues("unknown"))
	RecordExternalChange("")
	require.Equal(t, unknown+1, counterValue(t, externalChangesCounter.WithLabelValues("unknown")))
}

func TestRecordEvictionsIgnoresZero(t *testing.T) {
	before := counterValue(t, evictionsCounter)
	RecordEvictions(0)
	RecordEvictions(3)
	require.Equal(t, before+3, counterValue(t, evictionsCounter))
}
