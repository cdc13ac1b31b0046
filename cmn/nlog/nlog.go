// Package nlog provides the leveled, timestamped logger used throughout
// this module: Infof/Warningf/Errorf plus a process-wide level gate.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"
)

type severity int32

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) String() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

var (
	toStderr     bool
	alsoToStderr bool
	level        atomic.Int32 // messages below this severity are dropped

	std = log.New(os.Stderr, "", 0)
)

// InitFlags registers the standard logging flag names on flset, matching
// the conventions of the rest of the pack's command-line tools. The flags
// are accepted but have no effect: output always goes to standard error.
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", true, "no effect; logs always go to standard error")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "no effect; logs always go to standard error")
}

// SetLevel drops messages below sev; 0=info (default), 1=warning, 2=error only.
func SetLevel(sev int) { level.Store(int32(sev)) }

func Infof(format string, args ...any)    { logf(sevInfo, format, args...) }
func Warningf(format string, args ...any) { logf(sevWarn, format, args...) }
func Errorf(format string, args ...any)   { logf(sevErr, format, args...) }

func Infoln(args ...any)    { logln(sevInfo, args...) }
func Warningln(args ...any) { logln(sevWarn, args...) }
func Errorln(args ...any)   { logln(sevErr, args...) }

func logf(sev severity, format string, args ...any) {
	if int32(sev) < level.Load() {
		return
	}
	emit(sev, fmt.Sprintf(format, args...))
}

func logln(sev severity, args ...any) {
	if int32(sev) < level.Load() {
		return
	}
	emit(sev, fmt.Sprint(args...))
}

func emit(sev severity, msg string) {
	std.Printf("%s %s %s", time.Now().Format("2006-01-02T15:04:05.000Z07:00"), sev, msg)
}

// Flush is a no-op kept for call-site compatibility with the logger this
// one was adapted from; stderr writes are unbuffered.
func Flush(...bool) {}
