package api

import (
	"net/http"
	"strings"
)

// Based on https://github.com/gorilla/handlers/blob/master/cors.go
// Copyright (c) 2013 The Gorilla Handlers Authors, BSD license

// OriginValidator takes an origin string and returns whether or not
// that origin is allowed.
type OriginValidator func(string) bool

var (
	allowedHeaders = []string{"Accept", "Accept-Language", "Content-Language", "Origin", "Content-Type"}
	allowedMethods = []string{"POST", "OPTIONS"}
)

type cors struct {
	handler       http.Handler
	allowedOrigin OriginValidator
}

func (c *cors) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	if !c.allowedOrigin(origin) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if r.Method == http.MethodOptions {
		method := r.Header.Get("Access-Control-Request-Method")
		if method == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !contains(allowedMethods, method) {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		for _, h := range strings.Split(r.Header.Get("Access-Control-Request-Headers"), ",") {
			canonical := http.CanonicalHeaderKey(strings.TrimSpace(h))
			if !contains(allowedHeaders, canonical) {
				w.WriteHeader(http.StatusForbidden)
			}
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)

	if r.Method == http.MethodOptions {
		return
	}
	c.handler.ServeHTTP(w, r)
}

// CORS restricts cross-origin access to origins the validator accepts.
func CORS(validator OriginValidator) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return &cors{handler: h, allowedOrigin: validator}
	}
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
