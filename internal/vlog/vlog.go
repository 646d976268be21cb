/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package vlog is the verifier's logging surface. It mirrors the
// teacher's log.Log(message, level) call shape (jacobin's jacobin/log and
// jacobin/trace packages, see classloader.go's trace.Trace/trace.Error
// calls) but is backed by logrus instead of a hand-rolled level filter,
// and tags every run with a correlation ID.
package vlog

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Level names the teacher's FINE/INFO/WARNING/SEVERE levels, mapped onto
// logrus levels.
type Level int

const (
	FINE Level = iota
	INFO
	WARNING
	SEVERE
)

var std = logrus.New()

func init() {
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the minimum level that is emitted. Tests that want
// quiet output call this with SEVERE.
func SetLevel(l Level) {
	switch l {
	case FINE:
		std.SetLevel(logrus.DebugLevel)
	case INFO:
		std.SetLevel(logrus.InfoLevel)
	case WARNING:
		std.SetLevel(logrus.WarnLevel)
	case SEVERE:
		std.SetLevel(logrus.ErrorLevel)
	}
}

// Run is a logging handle scoped to one verifier.Verify call, tagging
// every line with a run ID the way a caller could grep a single run's
// output out of a shared log stream.
type Run struct {
	id     string
	entry  *logrus.Entry
}

// NewRun starts a correlation scope for one verification run.
func NewRun(subject string) *Run {
	id := uuid.NewString()
	return &Run{
		id:    id,
		entry: std.WithFields(logrus.Fields{"run_id": id, "subject": subject}),
	}
}

// ID returns the run's correlation ID.
func (r *Run) ID() string { return r.id }

// Log matches the teacher's log.Log(message, level) call convention.
func (r *Run) Log(message string, level Level) {
	switch level {
	case FINE:
		r.entry.Debug(message)
	case INFO:
		r.entry.Info(message)
	case WARNING:
		r.entry.Warn(message)
	case SEVERE:
		r.entry.Error(message)
	}
}

// Trace logs at FINE, matching jacobin's trace.Trace(msg) calls.
func (r *Run) Trace(message string) { r.Log(message, FINE) }

// Error logs at SEVERE, matching jacobin's trace.Error(msg) calls.
func (r *Run) Error(message string) { r.Log(message, SEVERE) }
