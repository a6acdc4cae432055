package process

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"
)

// OSSpawner is the real Spawner, backed by os/exec.
type OSSpawner struct{}

// Spawn implements Spawner: argv comes from spec.Args (args[0] is the
// executable), env is set exactly from spec.Env, and uid/gid are applied via
// SysProcAttr.Credential before exec, mirroring how the teacher's sandbox
// process launch configures Credential/UidMappings for a child process.
func (OSSpawner) Spawn(spec ChildSpec) (Child, error) {
	if len(spec.Args) == 0 {
		return nil, fmt.Errorf("process: empty args")
	}
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Env = flattenEnv(spec.Env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if spec.UID != nil || spec.GID != nil {
		cred := &syscall.Credential{}
		if spec.UID != nil {
			cred.Uid = uint32(*spec.UID)
		}
		if spec.GID != nil {
			cred.Gid = uint32(*spec.GID)
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: cred}
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osChild{cmd: cmd}, nil
}

func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

type osChild struct {
	cmd *exec.Cmd
}

func (c *osChild) Pid() int { return c.cmd.Process.Pid }

func (c *osChild) Signal(sig unix.Signal) error {
	return c.cmd.Process.Signal(sig)
}

func (c *osChild) Wait() error {
	return c.cmd.Wait()
}
