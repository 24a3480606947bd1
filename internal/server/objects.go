package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tripsync/internal/storage"
)

// objectHandler serves objects from a store that has no public endpoint.
func objectHandler(store storage.ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, err := store.Get(r.Context(), chi.URLParam(r, "key"))
		if errors.Is(err, storage.ErrObjectNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "object store unavailable", http.StatusBadGateway)
			return
		}
		defer obj.Body.Close()

		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		io.Copy(w, obj.Body)
	}
}
