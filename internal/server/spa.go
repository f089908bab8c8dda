package server

import (
	"bytes"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/dishly/dishly/internal/httputil"
)

const shellFile = "index.html"

// spaFileServer serves the built frontend. Paths that are not files get the
// app shell so client-side routes such as /recipes/42 load the app.
type spaFileServer struct {
	fileServer http.Handler
	fileSystem fs.FS
	shell      []byte
}

func newSPAFileServer(fsys fs.FS) *spaFileServer {
	shell, err := fs.ReadFile(fsys, shellFile)
	if err != nil {
		slog.Warn("spa: no app shell, falling back to the file server", "error", err)
	}
	return &spaFileServer{
		fileServer: http.FileServer(http.FS(fsys)),
		fileSystem: fsys,
		shell:      shell,
	}
}

var nonceTags = [][]byte{[]byte("<script"), []byte("<style"), []byte(`<link rel="stylesheet"`)}

// stampNonce adds the request's CSP nonce to every script and style tag of
// the shell.
func stampNonce(shell []byte, nonce string) []byte {
	if nonce == "" {
		return shell
	}
	attr := []byte(` nonce="` + nonce + `"`)
	out := shell
	for _, tag := range nonceTags {
		out = bytes.ReplaceAll(out, tag, append(append([]byte{}, tag...), attr...))
	}
	return out
}

func (s *spaFileServer) serveShell(w http.ResponseWriter, r *http.Request) {
	// Always revalidated: asset names change on every deploy.
	w.Header().Set("Cache-Control", "no-cache")
	if s.shell == nil {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		s.fileServer.ServeHTTP(w, r2)
		return
	}
	body := stampNonce(s.shell, httputil.Nonce(r.Context()))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(body)
	}
}

// asset reports the file a request maps to, or "" when the shell applies.
func (s *spaFileServer) asset(urlPath string) string {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" || !fs.ValidPath(name) {
		return ""
	}
	info, err := fs.Stat(s.fileSystem, name)
	if err != nil || info.IsDir() {
		return ""
	}
	return name
}

func (s *spaFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := s.asset(r.URL.Path)
	switch {
	case name == "" || name == shellFile:
		s.serveShell(w, r)
		return
	case strings.HasPrefix(name, "assets/"):
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	s.fileServer.ServeHTTP(w, r)
}
