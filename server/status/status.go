package status

import (
	"net/http"

	"github.com/midibridge/midid-go/memorywriter"
	"github.com/midibridge/midid-go/midi"
	"github.com/midibridge/midid-go/store"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
)

// This package serves the status page on /status/ and the detailed log
// at /status/log.gz

type status struct {
	store                               *store.Store
	stateKey                            string
	version                             string
	shortMemoryWriter, longMemoryWriter *memorywriter.MemoryWriter
}

const csrfkey = "x41p7c02hqln93kfwd8u5re6os1jzmb4"

func ServeStatusRedirect(r *mux.Router, addr string) {
	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "http://"+addr+"/status/", http.StatusMovedPermanently)
	})
	r.Use(OriginCheck(map[string]string{
		"": "",
	}))
}

func ServeStatus(r *mux.Router, st *store.Store, stateKey, version, addr string, mw, dmw *memorywriter.MemoryWriter) {
	status := &status{
		store:             st,
		stateKey:          stateKey,
		version:           version,
		shortMemoryWriter: mw,
		longMemoryWriter:  dmw,
	}
	r.Methods("GET").Path("/").HandlerFunc(status.statusPage)
	r.Methods("POST").Path("/log.gz").HandlerFunc(status.statusGzip)

	r.Use(csrf.Protect([]byte(csrfkey), csrf.Secure(false)))
	r.Use(OriginCheck(map[string]string{
		"/status/":       "",
		"/status/log.gz": "http://" + addr,
	}))
}

func (s *status) statusGzip(w http.ResponseWriter, r *http.Request) {
	s.longMemoryWriter.Log("status - building gzip")

	header := s.version + "\nCurrent log:\n"
	gzip, err := s.longMemoryWriter.Gzip(header)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	if _, err = w.Write(gzip); err != nil {
		respondError(w, err)
	}
}

func (s *status) statusPage(w http.ResponseWriter, r *http.Request) {
	s.longMemoryWriter.Log("status - building status page")

	st := midi.StateFrom(s.store.GetState(), s.stateKey)

	log, err := s.shortMemoryWriter.String(s.version + "\n")
	if err != nil {
		respondError(w, err)
		return
	}

	tdevs := make([]statusTemplateDevice, 0, len(st.Devices))
	for _, dev := range st.Devices {
		tdevs = append(tdevs, statusTemplateDevice{
			ID:        dev.ID,
			Name:      dev.Name,
			Type:      dev.Type,
			Listening: listening(st, dev.ID),
		})
	}

	data := &statusTemplateData{
		Version:     s.version,
		Devices:     tdevs,
		DeviceCount: len(tdevs),
		Log:         log,
		CSRFField:   csrf.TemplateField(r),
	}

	if err := statusTemplate.Execute(w, data); err != nil {
		respondError(w, err)
	}
}

func listening(st *midi.State, id string) bool {
	for _, lid := range st.ListeningDevices {
		if lid == id {
			return true
		}
	}
	return false
}

func respondError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}
