package events

import (
	"context"
	"os"
	"reflect"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ncolony/ncolony/internal/process"
)

type call struct {
	op   string
	name string
	spec process.ChildSpec
}

type fakeMonitor struct {
	calls []call
}

func (f *fakeMonitor) AddProcess(name string, spec process.ChildSpec) error {
	f.calls = append(f.calls, call{op: "add", name: name, spec: spec})
	return nil
}

func (f *fakeMonitor) RemoveProcess(name string) error {
	f.calls = append(f.calls, call{op: "remove", name: name})
	return nil
}

func (f *fakeMonitor) StopForRestart(name string) error {
	f.calls = append(f.calls, call{op: "restart", name: name})
	return nil
}

func (f *fakeMonitor) RestartAll() error {
	f.calls = append(f.calls, call{op: "restart-all"})
	return nil
}

func (f *fakeMonitor) Shutdown(ctx context.Context) error {
	f.calls = append(f.calls, call{op: "shutdown"})
	return nil
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return logrus.NewEntry(l)
}

func noAmbient(string) (string, bool) { return "", false }

func TestAddParsesAndForwards(t *testing.T) {
	fm := &fakeMonitor{}
	r := New(fm, noAmbient, testLog())

	err := r.Add("web", []byte(`{"args":["/bin/true","-x"],"uid":5}`))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(fm.calls) != 1 || fm.calls[0].op != "add" || fm.calls[0].name != "web" {
		t.Fatalf("calls = %+v", fm.calls)
	}
	if !reflect.DeepEqual(fm.calls[0].spec.Args, []string{"/bin/true", "-x"}) {
		t.Fatalf("Args = %v", fm.calls[0].spec.Args)
	}
	if fm.calls[0].spec.UID == nil || *fm.calls[0].spec.UID != 5 {
		t.Fatalf("UID = %v", fm.calls[0].spec.UID)
	}
}

func TestAddMalformedIsSkippedNotFatal(t *testing.T) {
	fm := &fakeMonitor{}
	r := New(fm, noAmbient, testLog())
	if err := r.Add("bad", []byte(`not json`)); err != nil {
		t.Fatalf("Add should swallow parse errors, got %v", err)
	}
	if len(fm.calls) != 0 {
		t.Fatalf("calls = %+v, want none", fm.calls)
	}
}

func TestRemoveForwardsAndClearsGroups(t *testing.T) {
	fm := &fakeMonitor{}
	r := New(fm, noAmbient, testLog())
	_ = r.Add("web", []byte(`{"args":["/bin/true"],"group":["frontend"]}`))

	fm.calls = nil
	if err := r.Remove("web"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(fm.calls) != 1 || fm.calls[0].op != "remove" {
		t.Fatalf("calls = %+v", fm.calls)
	}
	if gm := r.groupMembers["frontend"]; gm != nil && len(gm.Slice()) != 0 {
		t.Fatalf("group membership not cleared after Remove")
	}
}

func TestMessageRestart(t *testing.T) {
	fm := &fakeMonitor{}
	r := New(fm, noAmbient, testLog())
	if err := r.Message([]byte(`{"type":"RESTART","name":"web"}`)); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if len(fm.calls) != 1 || fm.calls[0].op != "restart" || fm.calls[0].name != "web" {
		t.Fatalf("calls = %+v", fm.calls)
	}
}

func TestMessageRestartAll(t *testing.T) {
	fm := &fakeMonitor{}
	r := New(fm, noAmbient, testLog())
	if err := r.Message([]byte(`{"type":"RESTART-ALL"}`)); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if len(fm.calls) != 1 || fm.calls[0].op != "restart-all" {
		t.Fatalf("calls = %+v", fm.calls)
	}
}

func TestMessageRestartGroupFansOutSorted(t *testing.T) {
	fm := &fakeMonitor{}
	r := New(fm, noAmbient, testLog())
	_ = r.Add("zeta", []byte(`{"args":["/bin/true"],"group":["frontend"]}`))
	_ = r.Add("alpha", []byte(`{"args":["/bin/true"],"group":["frontend"]}`))

	fm.calls = nil
	if err := r.Message([]byte(`{"type":"RESTART-GROUP","group":"frontend"}`)); err != nil {
		t.Fatalf("Message: %v", err)
	}
	var names []string
	for _, c := range fm.calls {
		if c.op != "restart" {
			t.Fatalf("unexpected op %q", c.op)
		}
		names = append(names, c.name)
	}
	sort.Strings(names)
	if !reflect.DeepEqual(names, []string{"alpha", "zeta"}) {
		t.Fatalf("names = %v", names)
	}
	// group fan-out must itself be delivered in sorted order, not just
	// sortable after the fact.
	if fm.calls[0].name != "alpha" || fm.calls[1].name != "zeta" {
		t.Fatalf("dispatch order = %+v", fm.calls)
	}
}

func TestMessageRestartGroupEmptyIsNoop(t *testing.T) {
	fm := &fakeMonitor{}
	r := New(fm, noAmbient, testLog())
	if err := r.Message([]byte(`{"type":"RESTART-GROUP","group":"nobody"}`)); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if len(fm.calls) != 0 {
		t.Fatalf("calls = %+v, want none", fm.calls)
	}
}

func TestMessageMalformedIsSkippedNotFatal(t *testing.T) {
	fm := &fakeMonitor{}
	r := New(fm, noAmbient, testLog())
	if err := r.Message([]byte(`not json`)); err != nil {
		t.Fatalf("Message should swallow parse errors, got %v", err)
	}
}

func TestAmbientEnvInherit(t *testing.T) {
	fm := &fakeMonitor{}
	ambient := func(k string) (string, bool) {
		if k == "PATH" {
			return "/usr/bin", true
		}
		return "", false
	}
	r := New(fm, ambient, testLog())
	if err := r.Add("web", []byte(`{"args":["/bin/true"],"env_inherit":["PATH"]}`)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if fm.calls[0].spec.Env["PATH"] != "/usr/bin" {
		t.Fatalf("Env[PATH] = %q", fm.calls[0].spec.Env["PATH"])
	}
}
