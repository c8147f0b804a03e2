package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/iface"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
)

// ErrNoPairs means no interface has both a client and a server address.
var ErrNoPairs = errors.New("no matching client/server interface pairs")

// Entry is one "name address" pair of an ifaces list.
type Entry struct {
	Name  string
	Addr  string
	Index int
}

func (c *Config) ifacesValue(section string) string {
	return c.readString(section, "ifaces", DefaultIfaces)
}

// ReadIfaces parses the ifaces list of section. Each entry gets its
// position in the list as Index. Entries without a valid IPv4 address are
// skipped with a warning; the first occurrence of a name wins.
func (c *Config) ReadIfaces(section string) []Entry {
	var entries []Entry
	seen := make(map[string]bool)
	i := 0
	for _, raw := range strings.Split(c.ifacesValue(section), ",") {
		fields := strings.Fields(raw)
		l := logging.Logger.WithFields(log.Fields{"section": section, "entry": strings.TrimSpace(raw)})
		switch {
		case len(fields) == 0:
			l.Warn("config: invalid interface entry, ignoring")
			continue
		case len(fields) == 1:
			l.Warn("config: missing address for interface, ignoring")
		case !validIPv4(fields[1]):
			l.Warn("config: invalid IPv4 address, ignoring")
		case seen[fields[0]]:
			l.Warn("config: duplicate interface, ignoring")
		default:
			seen[fields[0]] = true
			entries = append(entries, Entry{Name: fields[0], Addr: fields[1], Index: i})
		}
		i++
	}
	return entries
}

// ReadIfnames returns the interface names of the ifaces list of section,
// whether or not their addresses are valid. Position i in the result is
// the wire index of the interface.
func (c *Config) ReadIfnames(section string) []string {
	var names []string
	for _, raw := range strings.Split(c.ifacesValue(section), ",") {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	return names
}

// Pairs builds the usable interface table of a role. Server addresses come
// from serverSection and client addresses from clientSection; interfaces
// missing either are dropped. An empty result is ErrNoPairs.
func (c *Config) Pairs(serverSection, clientSection string) (*iface.Table, error) {
	t := iface.NewTable()
	for _, e := range c.ReadIfaces(serverSection) {
		// ReadIfaces never yields duplicates.
		_ = t.Add(iface.Record{Name: e.Name, ServerAddr: e.Addr, Index: e.Index})
	}
	for _, e := range c.ReadIfaces(clientSection) {
		e := e
		if !t.Update(e.Name, func(r *iface.Record) { r.ClientAddr = e.Addr }) {
			_ = t.Add(iface.Record{Name: e.Name, ClientAddr: e.Addr, Index: e.Index})
		}
	}
	for _, name := range t.Prune() {
		logging.Logger.WithFields(log.Fields{
			"iface":  name,
			"server": serverSection,
			"client": clientSection,
		}).Warn("config: interface lacks a client or server address, dropping")
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w in %s/%s", ErrNoPairs, serverSection, clientSection)
	}
	return t, nil
}
