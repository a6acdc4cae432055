// Package dirmon polls a directory and turns filesystem snapshots into an
// ordered stream of add/remove/change events (configuration mode) or drains
// one-shot command files (messages mode). Polling is driven entirely by an
// external clock: Monitor never sleeps or ticks on its own.
package dirmon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ncolony/ncolony/internal/btreeset"
)

// Sink receives the events a Monitor produces. In configuration mode, Add
// and Remove are called; in messages mode, only Message is called.
type Sink interface {
	Add(name string, contents []byte) error
	Remove(name string) error
	Message(contents []byte) error
}

// Mode selects the monitor's polling contract.
type Mode int

const (
	// ModeConfig performs a stateful add/remove/change diff against the
	// previous poll.
	ModeConfig Mode = iota
	// ModeMessages drains every file present on each poll and deletes it.
	ModeMessages
)

// newSuffix marks files invisible to the monitor, reserved for the
// atomic-write convention (write foo.new, rename to foo).
const newSuffix = ".new"

// Monitor polls a single directory in one of two modes.
type Monitor struct {
	dir  string
	mode Mode
	sink Sink
	log  *logrus.Entry

	seen     *btreeset.Set
	contents map[string][]byte
}

// New builds a Monitor over dir in the given mode, delivering events to sink.
func New(dir string, mode Mode, sink Sink, log *logrus.Entry) *Monitor {
	return &Monitor{
		dir:      dir,
		mode:     mode,
		sink:     sink,
		log:      log,
		seen:     btreeset.New(),
		contents: make(map[string][]byte),
	}
}

// Poll performs exactly one pass over the directory. It must be invoked by
// an external timer; Monitor has no internal ticking.
func (m *Monitor) Poll() error {
	switch m.mode {
	case ModeConfig:
		return m.pollConfig()
	case ModeMessages:
		return m.pollMessages()
	default:
		return fmt.Errorf("dirmon: unknown mode %d", m.mode)
	}
}

func listBasenames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, newSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Monitor) pollConfig() error {
	names, err := listBasenames(m.dir)
	if err != nil {
		return fmt.Errorf("dirmon: listing %s: %w", m.dir, err)
	}

	current := btreeset.New()
	for _, n := range names {
		current.Add(n)
	}

	var removed, added, changed []string
	m.seen.Each(func(name string) {
		if !current.Has(name) {
			removed = append(removed, name)
		}
	})
	current.Each(func(name string) {
		if !m.seen.Has(name) {
			added = append(added, name)
		} else {
			changed = append(changed, name)
		}
	})

	// removed-then-added-then-changed, per the documented dispatch order.
	for _, name := range removed {
		if err := m.sink.Remove(name); err != nil {
			m.log.WithField("name", name).WithError(err).Warn("remove callback failed")
		}
		m.seen.Remove(name)
		delete(m.contents, name)
	}
	for _, name := range added {
		contents, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				// Raced out of existence between enumeration and read: as
				// if it never appeared, per the documented edge case.
				continue
			}
			m.log.WithField("name", name).WithError(err).Warn("read failed")
			continue
		}
		if err := m.sink.Add(name, contents); err != nil {
			m.log.WithField("name", name).WithError(err).Warn("add callback failed")
		}
		m.seen.Add(name)
		m.contents[name] = contents
	}
	for _, name := range changed {
		contents, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			m.log.WithField("name", name).WithError(err).Warn("read failed")
			continue
		}
		if string(contents) == string(m.contents[name]) {
			continue
		}
		if err := m.sink.Remove(name); err != nil {
			m.log.WithField("name", name).WithError(err).Warn("remove callback failed")
		}
		if err := m.sink.Add(name, contents); err != nil {
			m.log.WithField("name", name).WithError(err).Warn("add callback failed")
		}
		m.contents[name] = contents
	}
	return nil
}

func (m *Monitor) pollMessages() error {
	names, err := listBasenames(m.dir)
	if err != nil {
		return fmt.Errorf("dirmon: listing %s: %w", m.dir, err)
	}

	var errs []error
	for _, name := range names {
		path := filepath.Join(m.dir, name)
		contents, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			m.log.WithField("name", name).WithError(err).Warn("read failed")
			continue
		}
		if err := m.sink.Message(contents); err != nil {
			m.log.WithField("name", name).WithError(err).Warn("message callback failed")
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("dirmon: delete %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
