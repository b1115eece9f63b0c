package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// Kind identifies which pipeline stage produced a record
type Kind string

const (
	KindRiskDecision   Kind = "risk_decision"
	KindSizingDecision Kind = "sizing_decision"
	KindExecutionPlan  Kind = "execution_plan"
	KindOrderResult    Kind = "order_result"
	KindKillSwitch     Kind = "kill_switch"
)

// Record is one immutable, append-only audit entry. ForecastID correlates
// every stage of one market's pipeline run so "why did or didn't this market
// trade" can be reconstructed without re-running anything.
type Record struct {
	ID         string          `json:"id"`
	ForecastID string          `json:"forecast_id"`
	MarketID   string          `json:"market_id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Storage persists audit records
type Storage interface {
	Store(ctx context.Context, record *Record) error
	QueryByForecast(ctx context.Context, forecastID string) ([]*Record, error)
}

// Trail is the append-only decision log. Writes are queued to a worker so
// the decision path never blocks on storage; the queue is flushed in batches
// and drained on Stop.
type Trail struct {
	storage Storage
	logger  *logrus.Entry

	recordCh chan *Record
	stopCh   chan struct{}
	wg       sync.WaitGroup

	appended *prometheus.CounterVec
	dropped  prometheus.Counter
}

const (
	queueSize    = 1024
	batchSize    = 64
	batchTimeout = 2 * time.Second
)

// NewTrail creates an audit trail over the given storage
func NewTrail(storage Storage, logger *logrus.Entry, reg prometheus.Registerer) *Trail {
	return &Trail{
		storage:  storage,
		logger:   logger,
		recordCh: make(chan *Record, queueSize),
		stopCh:   make(chan struct{}),
		appended: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pmgate_audit_records_total",
			Help: "Audit records appended, by kind",
		}, []string{"kind"}),
		dropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pmgate_audit_records_dropped_total",
			Help: "Audit records dropped because the queue was full",
		}),
	}
}

// Start launches the write worker
func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop flushes pending records and stops the worker
func (t *Trail) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// Append queues one record. The payload is marshalled immediately so later
// mutation of the source value cannot alter the trail.
func (t *Trail) Append(kind Kind, forecastID, marketID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		t.logger.WithError(err).WithField("kind", kind).Error("failed to marshal audit payload")
		return
	}

	rec := &Record{
		ID:         uuid.NewString(),
		ForecastID: forecastID,
		MarketID:   marketID,
		Kind:       kind,
		Payload:    data,
		CreatedAt:  time.Now(),
	}

	select {
	case t.recordCh <- rec:
		t.appended.WithLabelValues(string(kind)).Inc()
	default:
		t.dropped.Inc()
		t.logger.WithField("kind", kind).Warn("audit queue full, dropping record")
	}
}

// QueryByForecast returns every record for one pipeline run
func (t *Trail) QueryByForecast(ctx context.Context, forecastID string) ([]*Record, error) {
	return t.storage.QueryByForecast(ctx, forecastID)
}

func (t *Trail) worker() {
	defer t.wg.Done()

	var batch []*Record
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()

	flush := func() {
		for _, rec := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := t.storage.Store(ctx, rec); err != nil {
				t.logger.WithError(err).WithField("record_id", rec.ID).Error("failed to store audit record")
			}
			cancel()
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-t.stopCh:
			for {
				select {
				case rec := <-t.recordCh:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		case rec := <-t.recordCh:
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush()
			}
		}
	}
}
