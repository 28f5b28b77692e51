package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"time"

	"github.com/midibridge/midid-go/memorywriter"
	"github.com/midibridge/midid-go/midi"
	"github.com/midibridge/midid-go/store"

	"github.com/gorilla/mux"
)

// This package serves the bridge API. The actual device logic lives in
// the midi package's middleware; here we only translate between HTTP
// and store actions/state.

type api struct {
	store    *store.Store
	stateKey string
	messages *MessageLog
	version  string
	logger   *memorywriter.MemoryWriter
}

func ServeAPI(r *mux.Router, st *store.Store, stateKey string, msgs *MessageLog, version string, l *memorywriter.MemoryWriter) {
	api := &api{
		store:    st,
		stateKey: stateKey,
		messages: msgs,
		version:  version,
		logger:   l,
	}
	r.HandleFunc("/", api.Info)
	r.HandleFunc("/configure", api.Info)
	r.HandleFunc("/enumerate", api.Enumerate)
	r.HandleFunc("/listen", api.Listen)
	r.HandleFunc("/listening", api.Listening)
	r.HandleFunc("/send/{device}", api.Send)
	r.HandleFunc("/messages", api.Messages)
	r.Use(CORS(corsValidator()))
}

func (a *api) state() *midi.State {
	return midi.StateFrom(a.store.GetState(), a.stateKey)
}

func (a *api) Info(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("api - version " + a.version)

	type info struct {
		Version string `json:"version"`
	}
	err := json.NewEncoder(w).Encode(info{Version: a.version})
	a.checkJSONError(w, err)
}

func (a *api) Enumerate(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("api - enumerate")
	err := json.NewEncoder(w).Encode(a.state().Devices)
	a.checkJSONError(w, err)
}

// Listen long-polls the device list: the client posts the list it last
// saw and gets an answer once the state's list differs.
func (a *api) Listen(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("api - listen starting")

	const (
		iterMax   = 600
		iterDelay = 500 * time.Millisecond
	)

	var devices []midi.Device
	err := json.NewDecoder(r.Body).Decode(&devices)
	defer a.closeBody(r.Body)
	if err != nil {
		a.respondError(w, err)
		return
	}

	for i := 0; i < iterMax; i++ {
		current := a.state().Devices
		if !reflect.DeepEqual(devices, current) {
			devices = current
			break
		}
		select {
		case <-r.Context().Done():
			a.logger.Log("api - listen request closed")
			return
		case <-time.After(iterDelay):
		}
	}
	a.logger.Log("api - listen encoding and exiting")
	err = json.NewEncoder(w).Encode(devices)
	a.checkJSONError(w, err)
}

// Listening replaces the set of listened input devices.
func (a *api) Listening(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("api - listening")

	var ids []string
	err := json.NewDecoder(r.Body).Decode(&ids)
	defer a.closeBody(r.Body)
	if err != nil {
		a.respondError(w, err)
		return
	}

	a.store.Dispatch(midi.SetListeningDevices{IDs: ids})

	err = json.NewEncoder(w).Encode(a.state().ListeningDevices)
	a.checkJSONError(w, err)
}

// Send dispatches one outbound message. The body is the hex-encoded
// payload; sends are best-effort, so the reply only acknowledges the
// dispatch.
func (a *api) Send(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("api - send")

	vars := mux.Vars(r)
	device := vars["device"]

	hexbody, err := io.ReadAll(r.Body)
	defer a.closeBody(r.Body)
	if err != nil {
		a.respondError(w, err)
		return
	}
	data, err := hex.DecodeString(string(hexbody))
	if err != nil {
		a.respondError(w, err)
		return
	}

	var timestamp float64
	if ts := r.URL.Query().Get("timestamp"); ts != "" {
		timestamp, err = strconv.ParseFloat(ts, 64)
		if err != nil {
			a.respondError(w, err)
			return
		}
	}

	a.store.Dispatch(midi.SendMessage{Message: midi.Message{
		Data:      data,
		Timestamp: timestamp,
		Device:    device,
	}})

	err = json.NewEncoder(w).Encode(vars)
	a.checkJSONError(w, err)
}

// Messages long-polls inbound messages newer than the sequence number
// the client posts.
func (a *api) Messages(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("api - messages")

	type query struct {
		After uint64 `json:"after"`
	}
	var q query
	err := json.NewDecoder(r.Body).Decode(&q)
	defer a.closeBody(r.Body)
	if err != nil {
		a.respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	msgs := a.messages.Wait(ctx, q.After)
	err = json.NewEncoder(w).Encode(msgs)
	a.checkJSONError(w, err)
}

func (a *api) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		// just log
		a.logger.Log("api - error on request close: " + err.Error())
	}
}

func corsValidator() OriginValidator {
	// local web apps only; `localhost:8xxx` and `5xxx` are the usual
	// dev server ports
	lregex := regexp.MustCompile(`^https?://localhost:[58][[:digit:]]{3}$`)
	iregex := regexp.MustCompile(`^https?://127\.0\.0\.1:[58][[:digit:]]{3}$`)
	return func(origin string) bool {
		return lregex.MatchString(origin) || iregex.MatchString(origin)
	}
}

func (a *api) checkJSONError(w http.ResponseWriter, err error) {
	if err != nil {
		a.respondError(w, err)
	}
}

func (a *api) respondError(w http.ResponseWriter, err error) {
	a.logger.Log("api - error: " + err.Error())

	type jsonError struct {
		Error string `json:"error"`
	}
	w.WriteHeader(http.StatusBadRequest)
	// the status is already out, nothing more to do on encode failure
	_ = json.NewEncoder(w).Encode(jsonError{Error: err.Error()})
}
