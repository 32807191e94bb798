// Package logging provides a process-wide structured logger for the storage
// core, built on [logrus]. All subsystems obtain a logger through this
// package's With* helpers rather than constructing their own, so that level
// and output format are controlled from one place.
//
//	log := logging.WithLock(tid.String(), pid.String())
//	log.Debug("lock granted")
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	base     *logrus.Logger
	initOnce sync.Once
)

// Entry is the logger type returned by every With* helper.
type Entry = logrus.Entry

// Init configures the process-wide logger. Safe to call once at startup;
// later calls are ignored. If never called, GetLogger lazily initializes
// sensible defaults (INFO level, text formatter, stderr) on first use.
func Init(level logrus.Level, json bool) {
	initOnce.Do(func() {
		base = newLogger(level, json)
	})
}

func newLogger(level logrus.Level, json bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// GetLogger returns the process-wide logger, initializing defaults on first
// use.
func GetLogger() *logrus.Logger {
	initOnce.Do(func() {
		base = newLogger(logrus.InfoLevel, false)
	})
	return base
}

// WithComponent returns a logger tagged with a subsystem name, e.g.
// "lock_manager" or "buffer_pool".
func WithComponent(component string) *Entry {
	return GetLogger().WithField("component", component)
}

// WithTx returns a logger tagged with a transaction identity.
func WithTx(tid string) *Entry {
	return GetLogger().WithField("tid", tid)
}

// WithPage returns a logger tagged with a page identity.
func WithPage(pid string) *Entry {
	return GetLogger().WithField("page", pid)
}

// WithLock returns a logger tagged with both a transaction and the page it
// is contending for.
func WithLock(tid, pid string) *Entry {
	return GetLogger().WithFields(logrus.Fields{"tid": tid, "page": pid})
}
