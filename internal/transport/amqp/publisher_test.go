package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
	"github.com/kailas-cloud/dataforge/internal/events"
	"github.com/kailas-cloud/dataforge/internal/usecase/schedule"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type mockChannel struct {
	sent   []published
	err    error
	closed bool
}

func (m *mockChannel) PublishWithContext(
	_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing,
) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func newTestPublisher() (*Publisher, *mockChannel) {
	ch := &mockChannel{}
	p := newPublisher(ch, "test.events", zap.NewNop())
	p.now = func() time.Time { return time.UnixMilli(1000) }
	return p, ch
}

func TestPublish(t *testing.T) {
	p, ch := newTestPublisher()
	if err := p.Publish(context.Background(), "a.b", map[string]int{"n": 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("sent = %d", len(ch.sent))
	}
	s := ch.sent[0]
	if s.exchange != "test.events" || s.key != "a.b" {
		t.Errorf("exchange/key = %s/%s", s.exchange, s.key)
	}
	if s.msg.ContentType != "application/json" || s.msg.DeliveryMode != amqp091.Persistent || s.msg.MessageId == "" {
		t.Errorf("msg = %+v", s.msg)
	}
	if string(s.msg.Body) != `{"n":1}` {
		t.Errorf("body = %s", s.msg.Body)
	}
}

func TestPublish_Error(t *testing.T) {
	p, ch := newTestPublisher()
	ch.err = amqp091.ErrClosed
	if err := p.Publish(context.Background(), "k", 1); !errors.Is(err, amqp091.ErrClosed) {
		t.Errorf("err = %v", err)
	}
	if err := p.Close(); err != nil || !ch.closed {
		t.Errorf("Close = %v, closed = %v", err, ch.closed)
	}
}

func newDoc(t *testing.T, model string, data map[string]any, id string) domdoc.Document {
	t.Helper()
	d, err := domdoc.New(model, "u1", data)
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	return d.WithID(id)
}

func TestForwarder(t *testing.T) {
	p, ch := newTestPublisher()
	bus := events.New(zap.NewNop())
	events.RegisterData(bus)
	if err := NewForwarder(p).Register(bus); err != nil {
		t.Fatalf("Register: %v", err)
	}
	m, err := dommodel.New("u1", dommodel.Spec{Name: "Order", Fields: []field.Field{{Name: "total", Type: field.Number}}})
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	prev := newDoc(t, "Order", map[string]any{"total": 1}, "o1")
	next := newDoc(t, "Order", map[string]any{"total": 2}, "o1")
	ctx := context.Background()

	if err := bus.Publish(ctx, events.DocumentKey(events.Updated),
		events.DocumentEvent{User: "u1", Model: m, Document: next, Previous: &prev}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := bus.Publish(ctx, events.DocumentKey(events.Deleted),
		events.DocumentEvent{User: "u1", Model: m, Document: next, Previous: &next}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(ch.sent) != 2 {
		t.Fatalf("sent = %d", len(ch.sent))
	}
	if ch.sent[0].key != "data.Order.updated" || ch.sent[1].key != "data.Order.deleted" {
		t.Errorf("keys = %s, %s", ch.sent[0].key, ch.sent[1].key)
	}
	var msg DocumentMessage
	if err := json.Unmarshal(ch.sent[0].msg.Body, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.ID != "o1" || msg.Data["total"] != float64(2) || msg.Previous["total"] != float64(1) || msg.At != 1000 {
		t.Errorf("msg = %+v", msg)
	}
	var del DocumentMessage
	_ = json.Unmarshal(ch.sent[1].msg.Body, &del)
	if del.Data != nil {
		t.Errorf("delete message should carry only the previous data: %+v", del)
	}
}

func TestScheduler(t *testing.T) {
	p, ch := newTestPublisher()
	s := NewScheduler(p)
	ctx := context.Background()

	if err := s.Schedule(ctx, schedule.Trigger{ID: "d1/daily", Cron: "0 9 * * *"}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Cancel(ctx, "u1", "d1/daily"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := s.CancelModel(ctx, "u1", "Report"); err != nil {
		t.Fatalf("CancelModel: %v", err)
	}
	want := []string{KeySchedule, KeyCancel, KeyCancelModel}
	for i, k := range want {
		if ch.sent[i].key != k {
			t.Errorf("sent[%d] = %s, want %s", i, ch.sent[i].key, k)
		}
	}
	if string(ch.sent[2].msg.Body) != `{"user":"u1","model":"Report"}` {
		t.Errorf("cancel model body = %s", ch.sent[2].msg.Body)
	}
}
