// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ilog is the logging seam shared by sdspi and bufstream. The core
// packages never import a concrete logging library directly: they accept
// an ilog.Logger (defaulting to a no-op), and callers can plug in this
// package's logrus-backed implementation for trace/debug detail on the
// init and data-transfer paths. The logrus adapter lives in this same
// package, so every build that imports ilog (and therefore sdspi or
// bufstream) also links github.com/sirupsen/logrus.
package ilog

// Logger is the minimal structured-logging surface the core needs.
// Fields follow logrus' key/value convention so the logrus adapter is a
// direct pass-through.
type Logger interface {
	Trace(msg string, fields ...any)
	Debug(msg string, fields ...any)
}

// Nop is a Logger that discards everything. It is the default for every
// type in this module that accepts a Logger.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Trace(string, ...any) {}
func (nopLogger) Debug(string, ...any) {}

// Default returns l if non-nil, otherwise Nop. Every constructor in this
// module that accepts an optional Logger should route it through Default
// so callers never need to nil-check before logging.
func Default(l Logger) Logger {
	if l == nil {
		return Nop
	}
	return l
}
