package position

import (
	"context"
	"errors"
	"testing"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/redis"
)

type fakeReader struct {
	fixes []*data.Fix
	errs  []error
	calls int
	key   string
}

func (f *fakeReader) GetFix(_ context.Context, key string) (*data.Fix, error) {
	f.key = key
	i := f.calls
	f.calls++
	return f.fixes[i], f.errs[i]
}

func TestStatic(t *testing.T) {
	s := &Static{Fix: data.Fix{Lat: 1, Lon: 2}}
	got, err := s.Current(context.Background())
	if err != nil || got.Lat != 1 || got.Lon != 2 {
		t.Errorf("Current() = %+v, %v", got, err)
	}
}

func TestRedis_Current(t *testing.T) {
	fr := &fakeReader{
		fixes: []*data.Fix{nil, {Lat: 41, Speed: 3}, nil},
		errs:  []error{redis.ErrNoFix, nil, errors.New("connection refused")},
	}
	p := NewRedis(fr, "/wiperf-gpsinfo")
	ctx := context.Background()

	got, err := p.Current(ctx)
	if !errors.Is(err, redis.ErrNoFix) || got != (data.Fix{}) {
		t.Errorf("first Current() = %+v, %v", got, err)
	}
	got, err = p.Current(ctx)
	if err != nil || got.Lat != 41 {
		t.Errorf("second Current() = %+v, %v", got, err)
	}
	got, err = p.Current(ctx)
	if err == nil || got.Lat != 41 {
		t.Errorf("third Current() = %+v, %v; want the last known fix", got, err)
	}
	if fr.key != "/wiperf-gpsinfo" {
		t.Errorf("key = %q", fr.key)
	}
}
