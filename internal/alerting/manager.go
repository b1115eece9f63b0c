package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// Channel represents one alert delivery target
type Channel interface {
	Send(ctx context.Context, alert *Alert) error
	Name() string
}

// Config represents alert delivery configuration
type Config struct {
	WebhookURL    string
	Timeout       time.Duration
	RetryCount    int
	RetryInterval time.Duration
}

// Manager fans alerts out to every configured channel with bounded retries.
// Sends run on a worker goroutine so callers never block.
type Manager struct {
	channels []Channel
	config   *Config
	logger   *logrus.Entry

	alertCh chan *Alert
	stopCh  chan struct{}
	wg      sync.WaitGroup

	sentTotal   *prometheus.CounterVec
	failedTotal *prometheus.CounterVec
}

// NewManager creates an alert manager. A webhook channel is added when a URL
// is configured; the log channel is always present.
func NewManager(cfg *Config, logger *logrus.Entry, reg prometheus.Registerer) *Manager {
	m := &Manager{
		config:  cfg,
		logger:  logger,
		alertCh: make(chan *Alert, 256),
		stopCh:  make(chan struct{}),
		sentTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pmgate_alerts_sent_total",
			Help: "Alerts delivered, by channel and level",
		}, []string{"channel", "level"}),
		failedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pmgate_alerts_failed_total",
			Help: "Alert deliveries that failed after retries, by channel",
		}, []string{"channel"}),
	}

	m.channels = append(m.channels, &LogChannel{logger: logger})
	if cfg.WebhookURL != "" {
		m.channels = append(m.channels, &WebhookChannel{
			url:    cfg.WebhookURL,
			client: &http.Client{Timeout: cfg.Timeout},
		})
	}

	return m
}

// Start launches the delivery worker
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.worker()
}

// Stop drains and stops the delivery worker
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Notify queues an alert for delivery. A full queue drops the alert with a
// log line rather than blocking the decision path.
func (m *Manager) Notify(ctx context.Context, alert *Alert) {
	select {
	case m.alertCh <- alert:
	default:
		m.logger.WithField("alert_id", alert.ID).Warn("alert queue full, dropping alert")
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			for {
				select {
				case alert := <-m.alertCh:
					m.deliver(alert)
				default:
					return
				}
			}
		case alert := <-m.alertCh:
			m.deliver(alert)
		}
	}
}

// deliver sends an alert to every channel, retrying each with a fixed
// interval up to the configured count
func (m *Manager) deliver(alert *Alert) {
	for _, ch := range m.channels {
		var err error
		for attempt := 0; attempt <= m.config.RetryCount; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
			err = ch.Send(ctx, alert)
			cancel()
			if err == nil {
				break
			}
			time.Sleep(m.config.RetryInterval)
		}
		if err != nil {
			m.failedTotal.WithLabelValues(ch.Name()).Inc()
			m.logger.WithError(err).WithField("channel", ch.Name()).Error("alert delivery failed")
			continue
		}
		m.sentTotal.WithLabelValues(ch.Name(), string(alert.Level)).Inc()
	}
}

// LogChannel writes alerts to the structured log
type LogChannel struct {
	logger *logrus.Entry
}

// Name returns the channel name
func (c *LogChannel) Name() string { return "log" }

// Send logs the alert at a level matching its severity
func (c *LogChannel) Send(ctx context.Context, alert *Alert) error {
	entry := c.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"source":   alert.Source,
		"title":    alert.Title,
	})
	switch alert.Level {
	case LevelCritical:
		entry.Error(alert.Message)
	case LevelWarning:
		entry.Warn(alert.Message)
	default:
		entry.Info(alert.Message)
	}
	return nil
}

// WebhookChannel posts alerts as JSON to a configured URL
type WebhookChannel struct {
	url    string
	client *http.Client
}

// Name returns the channel name
func (c *WebhookChannel) Name() string { return "webhook" }

// Send posts the alert
func (c *WebhookChannel) Send(ctx context.Context, alert *Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
