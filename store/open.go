package store

import (
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
)

// Open builds the sink of a process: the configured database, plus a JSON
// lines archive under datadir when datadir is not empty. With neither, the
// records are discarded.
func Open(c *config.Config, datadir, what string) (Sink, error) {
	m := NewMulti()
	if db, ok := c.ReadDatabase(); ok {
		pg, err := OpenPostgres(db.DSN())
		if err != nil {
			return nil, err
		}
		m = m.With("postgres", pg)
	}
	if datadir != "" {
		a, err := NewArchive(datadir, what, true)
		if err != nil {
			m.Close()
			return nil, err
		}
		m = m.With("archive", a)
	}
	if len(m) == 0 {
		return Discard{}, nil
	}
	return m, nil
}
