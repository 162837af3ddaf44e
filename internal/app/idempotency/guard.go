package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Record is the stored outcome of one keyed request.
type Record struct {
	Key        string
	Payload    []byte
	OccurredAt time.Time
}

type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Save(ctx context.Context, rec Record) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var ErrStoreRequired = errors.New("idempotency: store required")

// Guard replays the stored result of a key instead of running the request
// again. Only successful results are stored, so a failed request can be
// retried with the same key.
type Guard struct {
	store  Store
	codec  ResultCodec
	logger *slog.Logger
	now    func() time.Time
}

func NewGuard(store Store, codec ResultCodec, logger *slog.Logger) (*Guard, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guard{store: store, codec: codec, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Do decodes the stored result for key into out and reports replayed=true,
// or runs fn, stores its result and decodes it into out. An empty key
// bypasses the store.
func (g *Guard) Do(ctx context.Context, key string, out any, fn func(ctx context.Context) (any, error)) (replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, g.run(ctx, out, fn, "")
	}
	rec, found, err := g.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if found {
		if err := g.codec.Decode(rec.Payload, out); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, g.run(ctx, out, fn, key)
}

func (g *Guard) run(ctx context.Context, out any, fn func(ctx context.Context) (any, error), key string) error {
	result, err := fn(ctx)
	if err != nil {
		return err
	}
	payload, err := g.codec.Encode(result)
	if err != nil {
		return err
	}
	if key != "" {
		rec := Record{Key: key, Payload: payload, OccurredAt: g.now()}
		// fn has run, so its result is returned even when the record is lost
		if err := g.store.Save(ctx, rec); err != nil {
			g.logger.Warn("idempotency record not saved", "key", key, "error", err)
		}
	}
	return g.codec.Decode(payload, out)
}
