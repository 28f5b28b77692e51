package main

import (
	"fmt"
	"strconv"

	"github.com/midibridge/midid-go/gomidi"
	"github.com/midibridge/midid-go/loopback"
	"github.com/midibridge/midid-go/memorywriter"
	"github.com/midibridge/midid-go/midi"
	"github.com/midibridge/midid-go/server"
	"github.com/midibridge/midid-go/server/api"
)

const version = "0.3.1"

func main() {
	options := parseFlags()

	if options.versionFlag {
		fmt.Printf("midid-go version %s\n", version)
		return
	}

	stderrWriter, stderrLogger, shortMemoryWriter, longMemoryWriter := initLoggers(
		options.logfile, options.verbose,
	)
	stderrLogger.Print("midid-go is starting.")

	requestAccess := pickBackend(options, longMemoryWriter)

	msgs := api.NewMessageLog(1000)

	st := midi.NewStore(midi.Config{
		Options:       midi.Options{Sysex: options.sysex},
		StateKey:      options.stateKey,
		RequestAccess: requestAccess,
		RetryOnError:  options.retry,
		Log:           longMemoryWriter,
	}, msgs.Middleware())

	// kick the adapter's lazy bootstrap so devices show up before the
	// first client connects
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})

	longMemoryWriter.Log("creating HTTP server")
	s, err := server.New(server.Config{
		Store:        st,
		StateKey:     options.stateKey,
		Messages:     msgs,
		Version:      version,
		Addr:         options.addr,
		StderrWriter: stderrWriter,
		ShortWriter:  shortMemoryWriter,
		LongWriter:   longMemoryWriter,
	})
	if err != nil {
		stderrLogger.Fatalf("https: %s", err)
	}

	longMemoryWriter.Log("running HTTP server")
	if err := s.Run(); err != nil {
		stderrLogger.Fatalf("https: %s", err)
	}

	longMemoryWriter.Log("main ended successfully")
}

// pickBackend decides where MIDI access comes from. Loopback pairs win
// over the platform driver, for testing environments; the platform
// driver is whatever the build registered with gomidi.
func pickBackend(options initOptions, log *memorywriter.MemoryWriter) midi.RequestAccessFunc {
	if len(options.loops) > 0 {
		log.Log(fmt.Sprintf("loopback pair count - %d", len(options.loops)))
		access := loopback.New()
		seen := map[string]bool{}
		for i, name := range options.loops {
			if name == "" || seen[name] {
				name = "loop" + strconv.Itoa(i)
			}
			seen[name] = true
			access.Pair(name)
		}
		return func(midi.Options) (midi.Access, error) {
			return access, nil
		}
	}
	if options.withDriver {
		log.Log("using platform MIDI driver")
		return gomidi.RequestAccess
	}
	// no backend at all; access requests fail with "not available"
	return nil
}
