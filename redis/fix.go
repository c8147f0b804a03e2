// fix.go
// Position fix operations

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
)

const (
	fixPrefix = "gpsinfo:"
	// FixTTL bounds how long a fix stays readable once the daemon stops
	// publishing.
	FixTTL = time.Minute
)

// ErrNoFix is returned when no fix has been published under the key.
var ErrNoFix = errors.New("no position fix published")

// SetFix publishes fix under key.
func (c *Client) SetFix(ctx context.Context, key string, fix *data.Fix) error {
	b, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fixPrefix+key, b, FixTTL).Err()
}

// GetFix returns the fix published under key.
func (c *Client) GetFix(ctx context.Context, key string) (*data.Fix, error) {
	b, err := c.rdb.Get(ctx, fixPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNoFix
	}
	if err != nil {
		return nil, err
	}
	var fix data.Fix
	if err := json.Unmarshal(b, &fix); err != nil {
		return nil, err
	}
	return &fix, nil
}
