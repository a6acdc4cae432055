// Package events translates directory-monitor events into process-monitor
// operations and holds the group membership index. It is the Go-native
// narrow interface that replaces the teacher domain's runtime-registered
// event-receiver contract (§9 REDESIGN FLAGS).
package events

import (
	"github.com/sirupsen/logrus"

	"github.com/ncolony/ncolony/internal/btreeset"
	"github.com/ncolony/ncolony/internal/ncmsg"
	"github.com/ncolony/ncolony/internal/ncspec"
	"github.com/ncolony/ncolony/internal/process"
)

// Ambient looks up an ambient environment variable, mirroring os.LookupEnv.
type Ambient func(key string) (string, bool)

// Receiver implements dirmon.Sink over a process.Monitor, maintaining the
// mirrored group -> {names} and name -> {groups} indices.
type Receiver struct {
	monitor process.Monitor
	ambient Ambient
	log     *logrus.Entry

	groupMembers map[string]*btreeset.Set // group -> names
	nameGroups   map[string]*btreeset.Set // name -> groups
}

// New builds a Receiver delivering operations to monitor.
func New(monitor process.Monitor, ambient Ambient, log *logrus.Entry) *Receiver {
	return &Receiver{
		monitor:      monitor,
		ambient:      ambient,
		log:          log,
		groupMembers: make(map[string]*btreeset.Set),
		nameGroups:   make(map[string]*btreeset.Set),
	}
}

// Add implements dirmon.Sink: parse, whitelist, merge env, register group
// membership, and hand the child off to the process monitor.
func (r *Receiver) Add(name string, raw []byte) error {
	spec, err := ncspec.Parse(raw)
	if err != nil {
		r.log.WithField("name", name).WithError(err).Warn("malformed spec, skipping")
		return nil
	}

	env := spec.BuildEnv(name, raw, r.ambient)
	r.registerGroups(name, spec.Group)

	return r.monitor.AddProcess(name, process.ChildSpec{
		Args: spec.Args,
		Env:  env,
		UID:  spec.UID,
		GID:  spec.GID,
	})
}

// Remove implements dirmon.Sink.
func (r *Receiver) Remove(name string) error {
	err := r.monitor.RemoveProcess(name)
	r.unregisterGroups(name)
	return err
}

// Message implements dirmon.Sink.
func (r *Receiver) Message(raw []byte) error {
	m, err := ncmsg.Parse(raw)
	if err != nil {
		r.log.WithError(err).Warn("malformed message, skipping")
		return nil
	}
	switch m.Type {
	case ncmsg.KindRestart:
		return r.monitor.StopForRestart(m.Name)
	case ncmsg.KindRestartAll:
		return r.monitor.RestartAll()
	case ncmsg.KindRestartGroup:
		members := r.groupMembers[m.Group]
		if members == nil {
			return nil // empty group is a no-op
		}
		var firstErr error
		members.Each(func(n string) {
			if err := r.monitor.StopForRestart(n); err != nil && firstErr == nil {
				firstErr = err
			}
		})
		return firstErr
	default:
		r.log.WithField("type", m.Type).Warn("unknown message type, skipping")
		return nil
	}
}

func (r *Receiver) registerGroups(name string, groups []string) {
	r.unregisterGroups(name)
	if len(groups) == 0 {
		return
	}
	ng := btreeset.New()
	for _, g := range groups {
		ng.Add(g)
		gm, ok := r.groupMembers[g]
		if !ok {
			gm = btreeset.New()
			r.groupMembers[g] = gm
		}
		gm.Add(name)
	}
	r.nameGroups[name] = ng
}

func (r *Receiver) unregisterGroups(name string) {
	groups, ok := r.nameGroups[name]
	if !ok {
		return
	}
	groups.Each(func(g string) {
		if gm, ok := r.groupMembers[g]; ok {
			gm.Remove(name)
			if gm.Len() == 0 {
				delete(r.groupMembers, g)
			}
		}
	})
	delete(r.nameGroups, name)
}
