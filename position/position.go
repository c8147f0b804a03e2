// Package position provides the mobility context attached to throughput
// measurements: latest coordinates, speed and heading of the node.
package position

import (
	"context"
	"sync"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/redis"
)

// Provider returns the current position fix.
type Provider interface {
	Current(ctx context.Context) (data.Fix, error)
}

// Static always returns the same fix. It serves nodes without a GPS.
type Static struct {
	Fix data.Fix
}

// Current returns the configured fix.
func (s *Static) Current(context.Context) (data.Fix, error) {
	return s.Fix, nil
}

// FixReader is the part of the Redis client the provider needs.
type FixReader interface {
	GetFix(ctx context.Context, key string) (*data.Fix, error)
}

// Redis reads the fixes the GPS daemon publishes under a key. When a read
// fails, the last fix read successfully is returned along with the error.
type Redis struct {
	reader FixReader
	key    string

	mu   sync.Mutex
	last data.Fix
}

// NewRedis returns a provider reading key through reader.
func NewRedis(reader FixReader, key string) *Redis {
	return &Redis{reader: reader, key: key}
}

// Current returns the latest published fix.
func (r *Redis) Current(ctx context.Context) (data.Fix, error) {
	fix, err := r.reader.GetFix(ctx, r.key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		return r.last, err
	}
	r.last = *fix
	return r.last, nil
}

var _ FixReader = &redis.Client{}
