// Backend is a small echo server for trying out reverse path rules by hand.
// Every response describes the request as the backend received it, so the
// effect of a rewrite and of the tracking cookie is visible from the client.
//
// Usage:
//
//	go run backend.go --port 8081 --name app
//
// With a rule such as {path: /app/, url: http://localhost:8081/}, a request
// for /app/x through the proxy shows up here as /x.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/pflag"
)

type echo struct {
	Backend string              `json:"backend"`
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   string              `json:"query,omitempty"`
	Via     string              `json:"via,omitempty"`
	Cookies map[string]string   `json:"cookies,omitempty"`
	Headers map[string][]string `json:"headers"`
}

func main() {
	port := pflag.IntP("port", "p", 8081, "port to listen on")
	name := pflag.StringP("name", "n", "backend", "name reported in responses")
	pflag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("request: method=%s path=%s from=%s", r.Method, r.URL.Path, r.RemoteAddr)

		resp := echo{
			Backend: *name,
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Via:     r.Header.Get("Via"),
			Headers: r.Header,
		}
		for _, c := range r.Cookies() {
			if resp.Cookies == nil {
				resp.Cookies = make(map[string]string)
			}
			resp.Cookies[c.Name] = c.Value
		}

		b, _ := json.MarshalIndent(resp, "", "  ")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting backend %q on %s", *name, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
