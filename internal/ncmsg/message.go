// Package ncmsg implements the Message data model: the one-shot commands
// deposited in the messages directory by producers and consumed at-most-once
// by the event receiver.
package ncmsg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Kind enumerates the recognized message types.
type Kind string

const (
	KindRestart      Kind = "RESTART"
	KindRestartAll   Kind = "RESTART-ALL"
	KindRestartGroup Kind = "RESTART-GROUP"
)

// Message is a single command written to the messages directory.
type Message struct {
	Type  Kind   `json:"type"`
	Name  string `json:"name,omitempty"`
	Group string `json:"group,omitempty"`
}

// Parse decodes raw JSON bytes into a Message and validates that required
// fields are present for its Type.
func Parse(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("ncmsg: malformed message json: %w", err)
	}
	switch m.Type {
	case KindRestart:
		if m.Name == "" {
			return Message{}, fmt.Errorf("ncmsg: RESTART message missing name")
		}
	case KindRestartAll:
	case KindRestartGroup:
		if m.Group == "" {
			return Message{}, fmt.Errorf("ncmsg: RESTART-GROUP message missing group")
		}
	default:
		return Message{}, fmt.Errorf("ncmsg: unknown message type %q", m.Type)
	}
	return m, nil
}

// Marshal encodes a Message to its wire JSON form.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// FileName builds the basename a producer uses for a message file:
// <3-digit-counter>Message.<producer-pid>. The counter is taken mod 1000 so
// the filename's numeric prefix imposes lexicographic ordering within a
// single producer's run of up to 1000 messages. The pid keeps different
// producers apart; within one producer, counters that differ by a multiple
// of 1000 map to the same basename.
func FileName(counter int, pid int) string {
	return fmt.Sprintf("%03dMessage.%d", counter%1000, pid)
}

// Write atomically deposits a Message into dir using the atomic-write
// convention: write to <name>.new, then rename to <name>.
func Write(dir string, counter int, pid int, m Message) error {
	raw, err := Marshal(m)
	if err != nil {
		return err
	}
	name := FileName(counter, pid)
	tmp := filepath.Join(dir, name+".new")
	final := filepath.Join(dir, name)
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("ncmsg: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("ncmsg: rename %s to %s: %w", tmp, final, err)
	}
	return nil
}

// Restart builds a RESTART message for name.
func Restart(name string) Message { return Message{Type: KindRestart, Name: name} }

// RestartAll builds a RESTART-ALL message.
func RestartAll() Message { return Message{Type: KindRestartAll} }

// RestartGroup builds a RESTART-GROUP message for group.
func RestartGroup(group string) Message { return Message{Type: KindRestartGroup, Group: group} }
