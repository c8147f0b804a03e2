// Package store contains the sinks that persist measurement records.
package store

import (
	"context"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
)

// Sink accepts finished measurement records. Store is called with every
// record decoded from one feedback report, or sampled in one channel
// monitor cycle. Implementations must be safe for concurrent use.
type Sink interface {
	Store(ctx context.Context, records []data.Measurement) error
	Close() error
}

// Multi forwards every batch to each of its sinks. A failing sink does not
// prevent the others from receiving the batch.
type Multi []namedSink

type namedSink struct {
	name string
	Sink
}

// NewMulti returns an empty fan-out sink.
func NewMulti() Multi {
	return nil
}

// With returns m extended with sink, labelled name in metrics and logs.
func (m Multi) With(name string, sink Sink) Multi {
	return append(m, namedSink{name: name, Sink: sink})
}

// Store forwards records to every sink and returns the first error.
func (m Multi) Store(ctx context.Context, records []data.Measurement) error {
	var first error
	for _, s := range m {
		err := s.Store(ctx, records)
		if err != nil {
			logging.Logger.WithError(err).WithField("sink", s.name).Warn("store: cannot persist batch")
			metrics.StoredRecords.WithLabelValues(s.name, "error").Add(float64(len(records)))
			if first == nil {
				first = err
			}
			continue
		}
		metrics.StoredRecords.WithLabelValues(s.name, "ok").Add(float64(len(records)))
	}
	return first
}

// Close closes every sink and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard drops every batch. It stands in when no sink is configured.
type Discard struct{}

// Store drops records.
func (Discard) Store(context.Context, []data.Measurement) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }
