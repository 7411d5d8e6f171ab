package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mux is a chi router that accepts error-returning handlers. Returned
// Errors are rendered as the JSON error envelope; anything else becomes a
// logged 500.
type Mux struct {
	chi.Router
}

func NewMux() *Mux {
	return &Mux{Router: chi.NewRouter()}
}

type HandleFunc func(http.ResponseWriter, *http.Request) error

func (h HandleFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h(w, r)
	if err == nil {
		return
	}

	if apiErr, ok := err.(*Error); ok {
		if err := WriteJSONWithStatus(w, apiErr, apiErr.Code); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	slog.Error("internal server error", slog.String("err", err.Error()),
		slog.String("path", r.URL.Path))

	apiErr := NewError("internal server error", http.StatusInternalServerError)
	if err := WriteJSONWithStatus(w, apiErr, apiErr.Code); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (m *Mux) Get(path string, h HandleFunc) {
	m.Router.Get(path, h.ServeHTTP)
}

func (m *Mux) Post(path string, h HandleFunc) {
	m.Router.Post(path, h.ServeHTTP)
}

func (m *Mux) Put(path string, h HandleFunc) {
	m.Router.Put(path, h.ServeHTTP)
}

func (m *Mux) Delete(path string, h HandleFunc) {
	m.Router.Delete(path, h.ServeHTTP)
}

func (m *Mux) Route(path string, f func(r *Mux)) {
	m.Router.Route(path, func(r chi.Router) {
		f(&Mux{Router: r})
	})
}

func (m *Mux) With(middleware func(http.Handler) http.Handler) *Mux {
	return &Mux{Router: m.Router.With(middleware)}
}
