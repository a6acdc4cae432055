package httpcheck

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ncolony/ncolony/internal/ncmsg"
)

// Tick performs one Check pass and writes a RESTART message into messagesDir
// for every stale name.
func Tick(c *Checker, messagesDir string, counter *int, log *logrus.Entry) error {
	pid := os.Getpid()
	for _, name := range c.Check() {
		*counter++
		if err := ncmsg.Write(messagesDir, *counter, pid, ncmsg.Restart(name)); err != nil {
			log.WithField("name", name).WithError(err).Warn("writing restart message failed")
			continue
		}
		log.WithField("name", name).Info("httpcheck: restart requested")
	}
	return nil
}
