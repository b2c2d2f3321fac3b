package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/workflow"
)

type recordingPublisher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published []models.ChangeEvent
}

func (p *recordingPublisher) publish(ctx context.Context, event models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func newTestDispatcher(p *recordingPublisher) *workflow.EventDispatcher {
	d := workflow.NewEventDispatcher(p.publish, quietLogger())
	d.InitialBackoff = time.Millisecond
	d.MaxBackoff = 4 * time.Millisecond
	return d
}

func TestEventDispatcherRetriesUntilPublished(t *testing.T) {
	p := &recordingPublisher{failFirst: 2}
	d := newTestDispatcher(p)

	events := make(chan models.ChangeEvent, 1)
	events <- models.ChangeEvent{Entity: models.EntityCustomer, Action: models.ChangeActionCreate, ID: "1"}
	close(events)
	d.Run(context.Background(), events)

	if p.calls != 3 || len(p.published) != 1 || p.published[0].ID != "1" {
		t.Fatalf("calls=%d published=%+v", p.calls, p.published)
	}
}

func TestEventDispatcherDropsAfterMaxAttempts(t *testing.T) {
	p := &recordingPublisher{failFirst: 100}
	d := newTestDispatcher(p)
	d.MaxAttempts = 3

	events := make(chan models.ChangeEvent, 2)
	events <- models.ChangeEvent{Entity: models.EntityCustomer, Action: models.ChangeActionCreate, ID: "1"}
	events <- models.ChangeEvent{Entity: models.EntityCustomer, Action: models.ChangeActionUpdate, ID: "1"}
	close(events)
	d.Run(context.Background(), events)

	if p.calls != 6 || len(p.published) != 0 {
		t.Fatalf("calls=%d published=%d", p.calls, len(p.published))
	}
}

func TestEventDispatcherForwardsCommittedChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, _ := newTestService(t)
	events, stop := svc.Repository().Subscribe(16)
	defer stop()

	p := &recordingPublisher{}
	done := make(chan struct{})
	go func() {
		newTestDispatcher(p).Run(ctx, events)
		close(done)
	}()

	c := mustAddCustomer(t, svc, "Kyaw")
	deadline := time.After(2 * time.Second)
	for {
		p.mu.Lock()
		n := len(p.published)
		p.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no event forwarded")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	first := p.published[0]
	if first.Entity != models.EntityCustomer || first.ID != c.ID || first.CorrelationId == "" {
		t.Fatalf("unexpected event: %+v", first)
	}
}
