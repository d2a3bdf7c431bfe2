package comlink

import (
	"context"
	"errors"
	"fmt"
)

// Producer serializes values and puts them on a [Queue].
type Producer[T any] struct {
	queue     Queue
	serialize SerializeFunc[T]
}

// NewProducer creates a Producer. Use [RawString] to send strings as-is.
func NewProducer[T any](queue Queue, serialize SerializeFunc[T]) (*Producer[T], error) {
	if queue == nil {
		return nil, errors.New("queue cannot be nil")
	}

	if serialize == nil {
		return nil, errors.New("serialize function cannot be nil")
	}

	return &Producer[T]{queue: queue, serialize: serialize}, nil
}

// Send serializes v and enqueues it, returning the transport's message ID.
func (p *Producer[T]) Send(ctx context.Context, v T, opts ...PutOption) (string, error) {
	body, err := p.serialize(v)
	if err != nil {
		return "", err
	}

	id, err := p.queue.Put(ctx, body, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to put message: %w", err)
	}

	return id, nil
}
