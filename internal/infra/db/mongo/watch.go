package mongo

import (
	"context"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// runWatch delivers query results once, then again whenever a change event
// matching match arrives on col. When the deployment has no change streams
// (standalone servers) it polls at the store's poll interval instead.
// Identical consecutive results are not redelivered.
func runWatch[T any](ctx context.Context, s *MessagingStore, col *mongo.Collection, match bson.D, query func(context.Context) ([]T, error), fn func([]T, error)) {
	go func() {
		w := &watcher[T]{query: query, fn: fn}
		if !w.refresh(ctx) {
			return
		}

		pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
		stream, err := col.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
		if err == nil {
			defer stream.Close(context.Background())
			for stream.Next(ctx) {
				if !w.refresh(ctx) {
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			err = stream.Err()
		}
		s.logger.Debug("change stream unavailable, polling", "collection", col.Name(), "error", err)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !w.refresh(ctx) {
					return
				}
			}
		}
	}()
}

type watcher[T any] struct {
	query     func(context.Context) ([]T, error)
	fn        func([]T, error)
	last      []T
	delivered bool
}

// refresh runs the query and reports whether the watch should continue.
func (w *watcher[T]) refresh(ctx context.Context) bool {
	items, err := w.query(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		w.fn(nil, err)
		return false
	}
	if w.delivered && reflect.DeepEqual(items, w.last) {
		return true
	}
	w.delivered = true
	w.last = items
	w.fn(items, nil)
	return true
}
