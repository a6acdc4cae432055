// Package ncspec implements the ProcessSpec data model: the config-directory
// file format that describes one supervised child.
package ncspec

import (
	"encoding/json"
	"fmt"
)

// EnvNameConfig is the environment variable every spawned child receives
// holding the raw JSON bytes of its ProcessSpec.
const EnvNameConfig = "NCOLONY_CONFIG"

// EnvNameName is the environment variable every spawned child receives
// holding its logical name.
const EnvNameName = "NCOLONY_NAME"

// whitelist is the set of top-level keys the receiver honors. Anything else
// is silently dropped, per the spec's forward-compatibility contract.
var whitelist = map[string]bool{
	"args":        true,
	"uid":         true,
	"gid":         true,
	"env":         true,
	"env_inherit": true,
	"group":       true,
}

// Spec is the canonical description of one supervised child, as read from a
// single file in the configuration directory.
type Spec struct {
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env,omitempty"`
	EnvInherit []string          `json:"env_inherit,omitempty"`
	UID        *int              `json:"uid,omitempty"`
	GID        *int              `json:"gid,omitempty"`
	Group      []string          `json:"group,omitempty"`
}

// Parse decodes raw JSON bytes into a Spec, dropping any unrecognized
// top-level key. raw must be retained by the caller: it is the exact byte
// sequence later exposed to the child via NCOLONY_CONFIG.
func Parse(raw []byte) (Spec, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Spec{}, fmt.Errorf("ncspec: malformed spec json: %w", err)
	}

	filtered := make(map[string]json.RawMessage, len(whitelist))
	for k, v := range generic {
		if whitelist[k] {
			filtered[k] = v
		}
	}

	repacked, err := json.Marshal(filtered)
	if err != nil {
		return Spec{}, fmt.Errorf("ncspec: re-marshal filtered spec: %w", err)
	}

	var s Spec
	if err := json.Unmarshal(repacked, &s); err != nil {
		return Spec{}, fmt.Errorf("ncspec: decode filtered spec: %w", err)
	}
	if len(s.Args) == 0 {
		return Spec{}, fmt.Errorf("ncspec: spec has no args")
	}
	return s, nil
}

// Extension decodes an unrecognized top-level key (e.g. "beatcheck",
// "httpcheck") that the checkers read directly from the raw bytes, bypassing
// the receiver's whitelist (those extensions are never applied to a running
// child's environment beyond the opaque NCOLONY_CONFIG bytes).
func Extension(raw []byte, key string, out any) (bool, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return false, fmt.Errorf("ncspec: malformed spec json: %w", err)
	}
	ext, ok := generic[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(ext, out); err != nil {
		return false, fmt.Errorf("ncspec: decode extension %q: %w", key, err)
	}
	return true, nil
}

// BuildEnv constructs the effective environment for a spawn: the spec's
// explicit env, then env_inherit copied from ambient (empty string if
// absent), then the two mandatory NCOLONY_* variables, unconditionally.
func (s Spec) BuildEnv(name string, raw []byte, ambient func(string) (string, bool)) map[string]string {
	env := make(map[string]string, len(s.Env)+len(s.EnvInherit)+2)
	for k, v := range s.Env {
		env[k] = v
	}
	for _, k := range s.EnvInherit {
		v, _ := ambient(k)
		env[k] = v
	}
	env[EnvNameConfig] = string(raw)
	env[EnvNameName] = name
	return env
}
