package audit

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestTrailFlushesOnStop(t *testing.T) {
	storage := NewMemoryStorage()
	trail := NewTrail(storage, testLogger(), prometheus.NewRegistry())
	trail.Start()

	trail.Append(KindRiskDecision, "f-1", "mkt-1", map[string]string{"verdict": "TRADE"})
	trail.Append(KindSizingDecision, "f-1", "mkt-1", map[string]float64{"stake_usd": 62.5})
	trail.Append(KindExecutionPlan, "f-1", "mkt-1", map[string]string{"strategy": "SIMPLE"})
	trail.Append(KindOrderResult, "f-1", "mkt-1", map[string]string{"status": "SIMULATED"})
	trail.Stop()

	records, err := storage.QueryByForecast(context.Background(), "f-1")
	require.NoError(t, err)
	require.Len(t, records, 4)

	kinds := make([]Kind, len(records))
	for i, rec := range records {
		kinds[i] = rec.Kind
		assert.Equal(t, "f-1", rec.ForecastID)
		assert.Equal(t, "mkt-1", rec.MarketID)
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.CreatedAt.IsZero())
	}
	assert.ElementsMatch(t, []Kind{KindRiskDecision, KindSizingDecision, KindExecutionPlan, KindOrderResult}, kinds)
}

func TestAppendMarshalsPayloadImmediately(t *testing.T) {
	storage := NewMemoryStorage()
	trail := NewTrail(storage, testLogger(), prometheus.NewRegistry())
	trail.Start()

	payload := map[string]float64{"stake_usd": 62.5}
	trail.Append(KindSizingDecision, "f-1", "mkt-1", payload)
	payload["stake_usd"] = 0 // mutation after append must not reach the trail
	trail.Stop()

	records, err := storage.QueryByForecast(context.Background(), "f-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	var stored map[string]float64
	require.NoError(t, json.Unmarshal(records[0].Payload, &stored))
	assert.Equal(t, 62.5, stored["stake_usd"])
}

func TestQueryFiltersByForecast(t *testing.T) {
	storage := NewMemoryStorage()
	trail := NewTrail(storage, testLogger(), prometheus.NewRegistry())
	trail.Start()

	trail.Append(KindRiskDecision, "f-1", "mkt-1", nil)
	trail.Append(KindRiskDecision, "f-2", "mkt-2", nil)
	trail.Stop()

	records, err := trail.QueryByForecast(context.Background(), "f-2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mkt-2", records[0].MarketID)
}

func TestMemoryStorageAll(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Store(context.Background(), &Record{ID: "r-1", ForecastID: "f-1"}))
	require.NoError(t, storage.Store(context.Background(), &Record{ID: "r-2", ForecastID: "f-2"}))
	assert.Len(t, storage.All(), 2)
}
