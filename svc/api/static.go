package api

import (
	"net/http"
	"os"
	"path/filepath"

	"sealbin/pkg/domain"
	"sealbin/svc/util"

	"github.com/rs/zerolog/hlog"
)

// Pages serves the two HTML shells. Decryption happens in the browser, so
// the pages are identical for every paste.
type Pages struct {
	dir string
}

func NewPages(dir string) *Pages {
	return &Pages{dir: dir}
}
func (p *Pages) Index(w http.ResponseWriter, r *http.Request) {
	p.serve(w, r, "index.html")
}
func (p *Pages) Retrieve(w http.ResponseWriter, r *http.Request) {
	p.serve(w, r, "retrieve.html")
}
func (p *Pages) Assets() http.Handler {
	return http.StripPrefix("/assets/", http.FileServer(http.Dir(filepath.Join(p.dir, "assets"))))
}
func (p *Pages) serve(w http.ResponseWriter, r *http.Request, name string) {
	path := filepath.Join(p.dir, name)
	body, err := os.ReadFile(path)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("path", path).Msg("failed to read page")
		writeErr(w, domain.ErrInternalServer, util.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
