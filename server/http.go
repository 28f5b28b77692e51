package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/midibridge/midid-go/memorywriter"
	"github.com/midibridge/midid-go/server/api"
	"github.com/midibridge/midid-go/server/status"
	"github.com/midibridge/midid-go/store"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// DefaultAddr is where the bridge listens; loopback only, the bridge is
// not meant to be reachable from the network.
const DefaultAddr = "127.0.0.1:21329"

type Config struct {
	Store    *store.Store
	StateKey string
	Messages *api.MessageLog
	Version  string
	Addr     string // DefaultAddr when empty

	StderrWriter io.Writer
	ShortWriter  *memorywriter.MemoryWriter
	LongWriter   *memorywriter.MemoryWriter
}

type Server struct {
	*http.Server

	writer io.Writer
}

func New(cfg Config) (*Server, error) {
	cfg.LongWriter.Log("server - starting")

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	allWriter := io.MultiWriter(cfg.StderrWriter, cfg.ShortWriter, cfg.LongWriter)
	s := &Server{
		Server: &http.Server{Addr: addr},
		writer: allWriter,
	}

	r := mux.NewRouter()
	statusRouter := r.PathPrefix("/status").Subrouter()
	postRouter := r.Methods("POST").Subrouter()
	redirectRouter := r.Methods("GET").Path("/").Subrouter()

	status.ServeStatus(statusRouter, cfg.Store, cfg.StateKey, cfg.Version, addr, cfg.ShortWriter, cfg.LongWriter)
	api.ServeAPI(postRouter, cfg.Store, cfg.StateKey, cfg.Messages, cfg.Version, cfg.LongWriter)
	status.ServeStatusRedirect(redirectRouter, addr)

	var h http.Handler = r
	// Log after the request is done, in the Apache format.
	h = handlers.LoggingHandler(allWriter, h)
	// Log when the request is received.
	h = s.logRequest(h)

	s.Handler = h

	cfg.LongWriter.Log("server - created")
	return s, nil
}

func (s *Server) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := fmt.Sprintf("%s %s\n", r.Method, r.URL)
		if _, err := s.writer.Write([]byte(text)); err != nil {
			// give up, just print on stdout
			fmt.Println(err)
		}
		handler.ServeHTTP(w, r)
	})
}

func (s *Server) Run() error {
	return s.ListenAndServe()
}
