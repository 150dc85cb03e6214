// Package guard keeps a client from running two submissions at once.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrBusy   = errors.New("submission already in progress")
	ErrClosed = errors.New("guard closed")
)

// Guard hands out per-key exclusive holds. Acquire returns ErrBusy when the
// key is already held; the returned release must be called once done.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type holdRequest struct {
	acquire bool
	key     string
	result  chan<- bool
}

// Memory is the in-process guard. A single goroutine owns the set of held
// keys and serves requests from a channel.
type Memory struct {
	requests chan holdRequest
	done     chan struct{}
}

func NewMemory() *Memory {
	g := &Memory{
		requests: make(chan holdRequest),
		done:     make(chan struct{}),
	}
	go g.loop()
	return g
}

func (g *Memory) loop() {
	held := make(map[string]bool)
	for {
		select {
		case req := <-g.requests:
			if req.acquire {
				req.result <- held[req.key]
				held[req.key] = true
			} else {
				delete(held, req.key)
			}
		case <-g.done:
			return
		}
	}
}

func (g *Memory) Acquire(ctx context.Context, key string) (func(), error) {
	busy := make(chan bool, 1)
	select {
	case g.requests <- holdRequest{acquire: true, key: key, result: busy}:
	case <-g.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if <-busy {
		return nil, ErrBusy
	}
	return func() {
		select {
		case g.requests <- holdRequest{key: key}:
		case <-g.done:
		}
	}, nil
}

// Close stops the owner goroutine; the guard must not be used afterwards.
func (g *Memory) Close() {
	close(g.done)
}

// Redis shares holds between server replicas. Holds expire after ttl so a
// crashed replica cannot lock a client out.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: "workation:submit:", ttl: ttl}
}

func (g *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	k := g.prefix + key
	ok, err := g.client.SetNX(ctx, k, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		// the request context may already be gone
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		g.client.Del(ctx, k)
	}, nil
}
