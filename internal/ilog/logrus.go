// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ilog

import "github.com/sirupsen/logrus"

// Logrus adapts a *logrus.Logger (or the package-level logrus.StandardLogger)
// to the Logger interface. Fields must be passed as alternating key, value
// pairs, e.g. NewLogrus(nil).Debug("read block", "addr", 12, "size", 512).
type Logrus struct {
	Entry *logrus.Logger
}

// NewLogrus returns a Logrus-backed Logger. A nil entry uses
// logrus.StandardLogger().
func NewLogrus(entry *logrus.Logger) Logrus {
	if entry == nil {
		entry = logrus.StandardLogger()
	}
	return Logrus{Entry: entry}
}

func (l Logrus) fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l Logrus) Trace(msg string, fields ...any) {
	l.Entry.WithFields(l.fields(fields)).Trace(msg)
}

func (l Logrus) Debug(msg string, fields ...any) {
	l.Entry.WithFields(l.fields(fields)).Debug(msg)
}
