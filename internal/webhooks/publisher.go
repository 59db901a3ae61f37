package webhooks

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Delivery is one pending outbound notification.
type Delivery struct {
	ID        string
	EventType string
	URL       string
	Secret    string
	Payload   []byte
	Attempts  int
	NextAt    time.Time
	LastError string
}

// Queue holds pending deliveries in memory with retry scheduling. Failed
// deliveries past their attempt budget move to the dead list.
type Queue struct {
	mu      sync.Mutex
	pending []Delivery
	dead    []Delivery
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Enqueue(d Delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
}

// Due removes and returns up to limit deliveries whose retry time has come.
func (q *Queue) Due(now time.Time, limit int) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []Delivery
	rest := q.pending[:0]
	for _, d := range q.pending {
		if len(due) < limit && !d.NextAt.After(now) {
			due = append(due, d)
			continue
		}
		rest = append(rest, d)
	}
	q.pending = rest
	return due
}

// Retry puts a failed delivery back with its attempt count advanced.
func (q *Queue) Retry(d Delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
}

// Bury moves an exhausted delivery to the dead list.
func (q *Queue) Bury(d Delivery) {
	q.mu.Lock()
	q.dead = append(q.dead, d)
	q.mu.Unlock()
}

// Dead returns a copy of the dead list for inspection.
func (q *Queue) Dead() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Delivery, len(q.dead))
	copy(out, q.dead)
	return out
}

func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Publisher turns fleet events into signed webhook deliveries aimed at the
// configured endpoint. With no endpoint configured it is a no-op.
type Publisher struct {
	Q        *Queue
	Endpoint string
	Secret   string
}

func NewPublisher(q *Queue, endpoint, secret string) *Publisher {
	return &Publisher{Q: q, Endpoint: endpoint, Secret: secret}
}

// Emit enqueues one delivery for the event.
func (p *Publisher) Emit(eventType string, data any) {
	if p == nil || p.Endpoint == "" {
		return
	}
	payload := map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	p.Q.Enqueue(Delivery{
		ID:        uuid.NewString(),
		EventType: eventType,
		URL:       p.Endpoint,
		Secret:    p.Secret,
		Payload:   body,
	})
}
