package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"eddisonso.com/edd-directory/internal/apperr"
)

// PhotoStore is the blob store behind the photo routes.
type PhotoStore interface {
	Save(filename string, r io.Reader) (string, error)
	Open(key string) (*os.File, error)
	Delete(key string) error
	Dir() string
}

type PhotoHandler struct {
	store    PhotoStore
	maxBytes int64
}

func NewPhotoHandler(store PhotoStore, maxBytes int64) *PhotoHandler {
	return &PhotoHandler{store: store, maxBytes: maxBytes}
}

func (h *PhotoHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /upload", h.handleUpload)
	mux.HandleFunc("GET /photos/{key}", h.handleGet)
	mux.HandleFunc("DELETE /photos/{key}", h.handleDelete)
	mux.Handle("GET /static/uploads/", http.StripPrefix("/static/uploads/", noDirListing(http.FileServer(http.Dir(h.store.Dir())))))
	mux.HandleFunc("GET /healthz", healthz)
}

func (h *PhotoHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, fmt.Errorf("%w: upload too large", apperr.ErrInvalidInput))
			return
		}
		writeError(w, r, fmt.Errorf("%w: file field required", apperr.ErrInvalidInput))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	key, err := h.store.Save(hdr.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"object_key": key})
}

func (h *PhotoHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	f, err := h.store.Open(key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.ServeContent(w, r, key, info.ModTime(), f)
}

func (h *PhotoHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.store.Delete(key); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"message": fmt.Sprintf("Photo %s deleted.", key)})
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			writeError(w, r, apperr.ErrPhotoMissing)
			return
		}
		next.ServeHTTP(w, r)
	})
}
