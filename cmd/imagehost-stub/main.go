// Command imagehost-stub is a minimal stand-in for the external media host,
// used in local development and the integration suite. It accepts signed
// uploads and destroys without verifying signatures and keeps nothing on
// disk; uploaded bytes are held in memory and served back under /files/.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
)

type store struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func main() {
	var addr string
	flag.StringVar(&addr, "addr", "0.0.0.0:9090", "listen address")
	flag.Parse()

	s := &store{files: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /image/upload", s.upload)
	mux.HandleFunc("POST /image/destroy", s.destroy)
	mux.HandleFunc("GET /files/{id}", s.serve)
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	slog.Info("imagehost stub listening", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func (s *store) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad multipart form", http.StatusBadRequest)
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field required", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "read file", http.StatusInternalServerError)
		return
	}

	folder := r.FormValue("folder")
	if folder == "" {
		folder = "uploads"
	}
	id := uuid.NewString()
	publicID := folder + "/" + id

	s.mu.Lock()
	s.files[id] = data
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"public_id":%q,"secure_url":"http://%s/files/%s","bytes":%d}`,
		publicID, r.Host, id, len(data))
}

func (s *store) destroy(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	publicID := r.FormValue("public_id")
	if publicID == "" {
		http.Error(w, "public_id required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	for id := range s.files {
		if publicID == id || len(publicID) > len(id) && publicID[len(publicID)-len(id):] == id {
			delete(s.files, id)
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"result":"ok"}`))
}

func (s *store) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data, ok := s.files[r.PathValue("id")]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}
