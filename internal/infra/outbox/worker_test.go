package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sourceStub struct {
	mu     sync.Mutex
	queue  []*EventDocument
	sent   []string
	failed map[string]string
}

func (s *sourceStub) Claim(ctx context.Context, workerID string) (*EventDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, nil
	}
	doc := s.queue[0]
	s.queue = s.queue[1:]
	return doc, nil
}

func (s *sourceStub) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *sourceStub) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[id] = errMsg
	return nil
}

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type producerStub struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *producerStub) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func TestWorkerPublishesCloudEvents(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	src := &sourceStub{queue: []*EventDocument{
		{ID: "e1", Name: "conversation.message_sent", Aggregate: "cv_1", OccurredAt: at, Payload: []byte(`{"message_id":"m1"}`)},
		{ID: "e2", Name: "conversation.created", Aggregate: "cv_2", OccurredAt: at, Payload: []byte(`{}`), Headers: map[string]string{"traceparent": "00-abc"}},
	}}
	prod := &producerStub{}
	w := &Worker{Store: src, Producer: prod, TopicPrefix: "dev.", ID: "w1"}

	require.NoError(t, w.drain(context.Background()))
	require.Equal(t, []string{"e1", "e2"}, src.sent)
	require.Len(t, prod.msgs, 2)

	first := prod.msgs[0]
	require.Equal(t, "dev.conversation.events.v1", first.topic)
	require.Equal(t, "cv_1", first.key)
	require.Equal(t, "application/cloudevents+json", first.headers["content-type"])

	var evt map[string]any
	require.NoError(t, json.Unmarshal(first.payload, &evt))
	require.Equal(t, "conversation.message_sent.v1", evt["type"])
	require.Equal(t, "app://venuehub", evt["source"])
	require.Equal(t, "e1", evt["id"])
	require.Equal(t, map[string]any{"message_id": "m1"}, evt["data"])

	require.NoError(t, json.Unmarshal(prod.msgs[1].payload, &evt))
	require.Equal(t, "00-abc", evt["traceparent"])
}

func TestWorkerMarksFailures(t *testing.T) {
	src := &sourceStub{queue: []*EventDocument{
		{ID: "bad", Name: "conversation.created", Payload: []byte(`not json`)},
		{ID: "down", Name: "conversation.created", Payload: []byte(`{}`)},
	}}
	prod := &producerStub{}
	w := &Worker{Store: src, Producer: prod, Backoff: []time.Duration{time.Second}}

	_, err := w.processOnce(context.Background())
	require.NoError(t, err)
	prod.err = errors.New("broker down")
	_, err = w.processOnce(context.Background())
	require.NoError(t, err)

	require.Empty(t, src.sent)
	require.Contains(t, src.failed, "bad")
	require.Equal(t, "broker down", src.failed["down"])
}

func TestWorkerRequiresDependencies(t *testing.T) {
	w := &Worker{}
	require.ErrorIs(t, w.Run(context.Background()), ErrWorkerNotConfigured)
}

func TestNextRetryUsesLastBackoff(t *testing.T) {
	w := &Worker{Backoff: []time.Duration{time.Second, time.Minute}}
	require.WithinDuration(t, time.Now().Add(time.Minute), w.nextRetry(5), time.Second)
	require.WithinDuration(t, time.Now().Add(time.Second), w.nextRetry(0), time.Second)
}
