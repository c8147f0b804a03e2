package store

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
)

// Archive appends every record as one JSON line to a file under datadir.
type Archive struct {
	// UUID names the file; one file per process run.
	UUID string
	// Name is the path of the file.
	Name string

	mu sync.Mutex
	// writer is where records are encoded.
	writer io.Writer
	// fp is the underlying writer file.
	fp *os.File
	// gzip is an optional writer for compressed results.
	gzip *gzip.Writer
}

// newFile opens the archive file for a run in the per-day directory of
// datadir.
func newFile(datadir, what, id string, compress bool) (*Archive, error) {
	timestamp := time.Now().UTC()
	dir := path.Join(datadir, "wiperf", timestamp.Format("2006/01/02"))
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}
	name := dir + "/wiperf-" + what + "-" + timestamp.Format("20060102T150405.000000000Z") + "." + id + ".jsonl"
	if compress {
		name += ".gz"
	}
	// O_EXCL lets us know about the unlikely name conflict.
	fp, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	a := &Archive{UUID: id, Name: name, writer: fp, fp: fp}
	if !compress {
		return a, nil
	}
	writer, err := gzip.NewWriterLevel(fp, gzip.BestSpeed)
	if err != nil {
		fp.Close()
		return nil, err
	}
	a.writer = writer
	a.gzip = writer
	return a, nil
}

// NewArchive creates the archive file of a run in datadir. The what
// argument says which process produced the records, e.g. "feedback".
func NewArchive(datadir, what string, compress bool) (*Archive, error) {
	a, err := newFile(datadir, what, uuid.NewString(), compress)
	if err != nil {
		logging.Logger.WithError(err).Warn("newFile failed")
		return nil, err
	}
	return a, nil
}

type archived struct {
	data.Measurement
	Kind string
}

// Store writes one line per record.
func (a *Archive) Store(_ context.Context, records []data.Measurement) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fp == nil {
		return os.ErrClosed
	}
	enc := json.NewEncoder(a.writer)
	for i := range records {
		r := archived{Measurement: records[i], Kind: records[i].Kind().String()}
		r.SchemaVersion = data.CurrentSchemaVersion
		if err := enc.Encode(&r); err != nil {
			return err
		}
	}
	if a.gzip != nil {
		return a.gzip.Flush()
	}
	return nil
}

// Close closes the archive file.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fp == nil {
		return nil
	}
	fp := a.fp
	a.fp = nil
	if a.gzip != nil {
		err := a.gzip.Close()
		if err != nil {
			fp.Close()
			return err
		}
	}
	return fp.Close()
}
