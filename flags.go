package main

import (
	"flag"
	"strings"
)

// loopNames collects repeated -loop flags.
type loopNames []string

func (l *loopNames) String() string {
	return strings.Join(*l, ",")
}

func (l *loopNames) Set(value string) error {
	*l = append(*l, value)
	return nil
}

type initOptions struct {
	logfile     string
	addr        string
	stateKey    string
	loops       loopNames
	withDriver  bool
	sysex       bool
	retry       bool
	verbose     bool
	versionFlag bool
}

func parseFlags() initOptions {
	var options initOptions
	flag.StringVar(
		&(options.logfile),
		"l",
		"",
		"Log into a file, rotating after 20MB",
	)
	flag.StringVar(
		&(options.addr),
		"a",
		"",
		"Listen address. Defaults to 127.0.0.1:21329.",
	)
	flag.StringVar(
		&(options.stateKey),
		"k",
		"",
		"State key the MIDI reducer is mounted at. Defaults to \"midi\".",
	)
	flag.Var(
		&(options.loops),
		"loop",
		"Add a named loopback device pair instead of real hardware. Can be repeated. Example: midid-go -loop alpha -loop beta",
	)
	flag.BoolVar(
		&(options.withDriver),
		"m",
		true,
		"Use the platform MIDI driver. Can be disabled for testing environments. Example: midid-go -loop alpha -m=false",
	)
	flag.BoolVar(
		&(options.sysex),
		"sysex",
		false,
		"Ask the driver to deliver system-exclusive messages too",
	)
	flag.BoolVar(
		&(options.retry),
		"r",
		false,
		"Retry a failed MIDI access request on the next action instead of remembering the failure",
	)
	flag.BoolVar(
		&(options.verbose),
		"v",
		false,
		"Write verbose logs to either stderr or logfile",
	)
	flag.BoolVar(
		&(options.versionFlag),
		"version",
		false,
		"Write version",
	)
	flag.Parse()
	return options
}
