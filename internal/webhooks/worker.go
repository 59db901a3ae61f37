package webhooks

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Worker drains the queue, POSTing each delivery with an HMAC signature and
// retrying with exponential backoff until MaxAttempts.
type Worker struct {
	Q           *Queue
	HTTP        *http.Client
	MaxAttempts int
	Lg          *slog.Logger

	stop chan struct{}
}

func NewWorker(q *Queue, lg *slog.Logger) *Worker {
	if lg == nil {
		lg = slog.Default()
	}
	return &Worker{
		Q:           q,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: 10,
		Lg:          lg,
		stop:        make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.ProcessOnce(context.Background())
			}
		}
	}()
}

func (w *Worker) Stop() { close(w.stop) }

// ProcessOnce attempts every due delivery once.
func (w *Worker) ProcessOnce(ctx context.Context) {
	now := time.Now()
	for _, d := range w.Q.Due(now, 50) {
		w.attempt(ctx, d)
	}
}

func (w *Worker) attempt(ctx context.Context, d Delivery) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Payload))
	if err != nil {
		w.Q.Bury(d)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fleetops-Event", d.EventType)
	if d.Secret != "" {
		req.Header.Set("X-Fleetops-Signature", SignHMAC(d.Secret, d.Payload))
	}

	resp, err := w.HTTP.Do(req)
	if err == nil {
		code := resp.StatusCode
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		if code >= 200 && code < 300 {
			return
		}
		d.LastError = resp.Status
	} else {
		d.LastError = err.Error()
	}

	d.Attempts++
	if d.Attempts >= w.MaxAttempts {
		w.Lg.Warn("webhook delivery exhausted", "event", d.EventType, "url", d.URL, "err", d.LastError)
		w.Q.Bury(d)
		return
	}
	d.NextAt = time.Now().Add(nextBackoff(d.Attempts))
	w.Q.Retry(d)
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
