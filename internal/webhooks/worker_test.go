package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWorkerDeliversWithSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Fleetops-Signature")
		gotType = r.Header.Get("X-Fleetops-Event")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewQueue()
	pub := NewPublisher(q, srv.URL, "secret")
	pub.Emit("decision.pending", map[string]any{"decisionId": "d1"})
	if q.PendingCount() != 1 {
		t.Fatalf("pending = %d", q.PendingCount())
	}

	w := NewWorker(q, nil)
	w.HTTP = srv.Client()
	w.ProcessOnce(context.Background())

	if gotType != "decision.pending" {
		t.Fatalf("event header = %q", gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatal("signature should verify against the body")
	}
	if q.PendingCount() != 0 {
		t.Fatal("delivered item should leave the queue")
	}
}

func TestWorkerRetriesThenBuries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := NewQueue()
	NewPublisher(q, srv.URL, "").Emit("truck.stuck", nil)

	w := NewWorker(q, nil)
	w.HTTP = srv.Client()
	w.MaxAttempts = 2

	w.ProcessOnce(context.Background())
	if q.PendingCount() != 1 {
		t.Fatal("first failure should reschedule")
	}
	if len(q.Dead()) != 0 {
		t.Fatal("not dead yet")
	}

	// force the retry due and exhaust the budget
	d := q.Due(time.Now().Add(time.Hour), 10)
	if len(d) != 1 {
		t.Fatalf("due = %d", len(d))
	}
	w.attempt(context.Background(), d[0])
	if len(q.Dead()) != 1 {
		t.Fatal("second failure should bury the delivery")
	}
}

func TestPublisherWithoutEndpointIsNoop(t *testing.T) {
	q := NewQueue()
	NewPublisher(q, "", "secret").Emit("anything", nil)
	if q.PendingCount() != 0 {
		t.Fatal("no endpoint means no deliveries")
	}
}

func TestQueueDueRespectsSchedule(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Enqueue(Delivery{ID: "a"})
	q.Enqueue(Delivery{ID: "b", NextAt: now.Add(time.Minute)})

	due := q.Due(now, 10)
	if len(due) != 1 || due[0].ID != "a" {
		t.Fatalf("due = %+v", due)
	}
	if q.PendingCount() != 1 {
		t.Fatal("future delivery stays queued")
	}
}
