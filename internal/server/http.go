package server

import (
	"embed"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/codechat-live/codechat-server/internal/manager"
)

//go:embed static
var staticFiles embed.FS

// viewerHandler builds the HTTP-port handler tree.
func (s *Server) viewerHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/client", s.handleViewerPage)
	mux.HandleFunc("/client/", s.handleClientData)
	mux.Handle("/static/", http.FileServer(http.FS(staticFiles)))
	mux.HandleFunc("/insecure", s.handleInsecure)
	return noCache(mux)
}

// noCache marks every response uncacheable. Rendered output changes on
// every keystroke, and the url event may resend an identical path.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		next.ServeHTTP(w, r)
	})
}

// handleViewerPage serves the viewer shell. The client id rides in the
// query string and is consumed by the page's script, not here.
func (s *Server) handleViewerPage(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "static/client.html")
}

func (s *Server) handleInsecure(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "static/insecure.html")
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := staticFiles.ReadFile(name)
	if err != nil {
		s.log.Error(r.Context(), err, "missing embedded asset", "name", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	w.Write(data)
}

// handleClientData answers GET /client/<id>/<path>. The path is matched
// against the client's last render: an inline hit returns the stored HTML,
// an on-disk hit serves the rendered file, and a miss falls back to the
// path as a plain file on disk so rendered pages can load sibling assets
// (images, stylesheets).
func (s *Server) handleClientData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/client/")
	idText, urlPath, ok := strings.Cut(rest, "/")
	if !ok || urlPath == "" {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.Atoi(idText)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	text, lookup := s.manager.GetRenderResults(manager.ClientID(id), urlPath)
	switch lookup {
	case manager.LookupInline:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, text)
	case manager.LookupOnDisk:
		http.ServeFile(w, r, text)
	default:
		s.serveDiskPath(w, r, urlPath)
	}
}

// serveDiskPath serves urlPath verbatim from the filesystem. Rendered
// documents reference assets relative to their own path, which the
// browser resolves under /client/<id>/, so the tail is an absolute
// filesystem path in URL form.
func (s *Server) serveDiskPath(w http.ResponseWriter, r *http.Request, urlPath string) {
	fsPath := filepath.FromSlash(urlPath)
	if !filepath.IsAbs(fsPath) {
		fsPath = string(filepath.Separator) + fsPath
	}
	fi, err := os.Stat(fsPath)
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, fsPath)
}
