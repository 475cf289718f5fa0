package communicator

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Communicator posts alert notifications to a webhook with retries and
// buffering.
type Communicator struct {
	agentName    string
	endpoint     string
	client       *http.Client
	token        string
	queue        chan Notification
	wg           sync.WaitGroup
	sendInterval time.Duration
	maxQueue     int
	maxAttempts  int
	baseDelay    time.Duration
	log          zerolog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates communicator; it does NOT start the send loop.
func New(cfg *config.Config, log zerolog.Logger) *Communicator {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.Notify.InsecureSkipVerify,
	}
	timeout := time.Duration(cfg.Notify.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsCfg,
		},
	}

	token := ""
	if cfg.Notify.AuthTokenEnv != "" {
		token = os.Getenv(cfg.Notify.AuthTokenEnv)
	}

	maxQ := cfg.Notify.MaxQueueSize
	if maxQ <= 0 {
		maxQ = 1000
	}
	interval := time.Duration(cfg.Notify.SendIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Communicator{
		agentName:    cfg.Agent.Name,
		endpoint:     cfg.Notify.WebhookURL,
		client:       client,
		token:        token,
		queue:        make(chan Notification, maxQ),
		sendInterval: interval,
		maxQueue:     maxQ,
		maxAttempts:  6,
		baseDelay:    500 * time.Millisecond,
		log:          log.With().Str("component", "communicator").Logger(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start background sender loop. Call once.
func (c *Communicator) Start() {
	c.wg.Add(1)
	go c.loop()
	c.log.Info().Int("queue_capacity", c.maxQueue).Str("endpoint", c.endpoint).Msg("communicator started")
}

// Shutdown stops the sender after one final delivery attempt for whatever is
// still queued, bounded by ctx.
func (c *Communicator) Shutdown(ctx context.Context) {
	c.log.Info().Msg("communicator shutdown initiated")
	c.cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info().Msg("communicator shutdown complete")
	case <-ctx.Done():
		c.log.Warn().Msg("communicator shutdown timeout")
	}
}

// Notify implements alert.Notifier.
func (c *Communicator) Notify(a alert.Alert) {
	c.Send(newNotification(c.agentName, a))
}

// Send enqueues a notification. Non-blocking: if queue full, it drops oldest item.
func (c *Communicator) Send(n Notification) {
	if n.CorrelationID == "" {
		n.CorrelationID = uuid.New().String()
	}

	select {
	case c.queue <- n:
	default:
		// queue full: drop oldest (read one) then enqueue
		select {
		case <-c.queue:
		default:
		}
		select {
		case c.queue <- n:
		default:
			c.log.Warn().Str("title", n.Title).Msg("notification dropped: queue full")
		}
	}
}

// loop batches and sends
func (c *Communicator) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sendInterval)
	defer ticker.Stop()

	buffer := make([]Notification, 0, 32)

	for {
		select {
		case <-c.ctx.Done():
			for {
				select {
				case n := <-c.queue:
					buffer = append(buffer, n)
				default:
					if len(buffer) > 0 {
						c.flush(buffer, 1)
					}
					return
				}
			}

		case n := <-c.queue:
			buffer = append(buffer, n)
			if len(buffer) >= 100 {
				c.flush(buffer, c.maxAttempts)
				buffer = buffer[:0]
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				c.flush(buffer, c.maxAttempts)
				buffer = buffer[:0]
			}
		}
	}
}

// flush posts the batch and retries with exponential backoff + jitter.
func (c *Communicator) flush(items []Notification, maxAttempts int) {
	payload, err := json.Marshal(items)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal notifications failed")
		return
	}

	var attempt int
	for {
		attempt++
		err := c.post(payload, items[0].CorrelationID)
		if err == nil {
			c.log.Info().Int("count", len(items)).Str("correlation", items[0].CorrelationID).Msg("notifications posted")
			return
		}

		c.log.Warn().Err(err).Int("attempt", attempt).Int("count", len(items)).Msg("notification post failed")

		if attempt >= maxAttempts {
			c.log.Error().Int("attempts", attempt).Msg("max attempts reached, dropping notification batch")
			return
		}

		backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseDelay
		jitter := time.Duration(rand.Int63n(int64(c.baseDelay)))

		select {
		case <-time.After(backoff + jitter):
		case <-c.ctx.Done():
			c.log.Warn().Msg("communicator stopping during backoff")
			c.flushOnce(payload, items)
			return
		}
	}
}

func (c *Communicator) flushOnce(payload []byte, items []Notification) {
	if err := c.post(payload, items[0].CorrelationID); err != nil {
		c.log.Error().Err(err).Int("count", len(items)).Msg("dropping notification batch")
	}
}

func (c *Communicator) post(payload []byte, correlationID string) error {
	// the client timeout bounds this; c.ctx may already be cancelled during shutdown
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Correlation-ID", correlationID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	return nil
}
