package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"eddisonso.com/edd-directory/internal/apperr"
	"eddisonso.com/edd-directory/internal/auth"
	"eddisonso.com/edd-directory/internal/directory"
)

type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (auth.Identity, error)
}

type Directory interface {
	List(ctx context.Context, who auth.Identity) ([]directory.EmployeePublic, error)
	Get(ctx context.Context, who auth.Identity, id int64) (*directory.EmployeePublic, error)
	Save(ctx context.Context, who auth.Identity, in directory.SaveInput) (*directory.Employee, error)
	Delete(ctx context.Context, who auth.Identity, id int64) error
}

const maxFormMemory = 32 << 20

type EmployeeHandler struct {
	gate      Authenticator
	directory Directory
}

func NewEmployeeHandler(gate Authenticator, dir Directory) *EmployeeHandler {
	return &EmployeeHandler{gate: gate, directory: dir}
}

func (h *EmployeeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /employees", h.authMiddleware(h.handleList))
	mux.HandleFunc("GET /employee/{id}", h.authMiddleware(h.handleGet))
	mux.HandleFunc("POST /employee", h.authMiddleware(h.handleSave))
	mux.HandleFunc("DELETE /employee/{id}", h.authMiddleware(h.handleDelete))
	mux.HandleFunc("GET /healthz", healthz)
}

// authMiddleware runs the authentication gate and injects the identity into context
func (h *EmployeeHandler) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.gate.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r.WithContext(setIdentity(r.Context(), id)))
	}
}

func employeeID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid employee id", apperr.ErrInvalidInput)
	}
	return id, nil
}

func (h *EmployeeHandler) handleList(w http.ResponseWriter, r *http.Request) {
	who, _ := identityFromContext(r.Context())
	list, err := h.directory.List(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, list)
}

func (h *EmployeeHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	who, _ := identityFromContext(r.Context())
	id, err := employeeID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := h.directory.Get(r.Context(), who, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, e)
}

func (h *EmployeeHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	who, _ := identityFromContext(r.Context())

	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, r, fmt.Errorf("%w: invalid form", apperr.ErrInvalidInput))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	in := directory.SaveInput{
		FullName: r.FormValue("full_name"),
		Location: r.FormValue("location"),
		JobTitle: r.FormValue("job_title"),
		Badges:   r.FormValue("badges"),
	}
	if raw := strings.TrimSpace(r.FormValue("employee_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, fmt.Errorf("%w: invalid employee_id", apperr.ErrInvalidInput))
			return
		}
		in.EmployeeID = id
	}

	file, hdr, err := r.FormFile("photo")
	switch {
	case err == nil:
		defer file.Close()
		if hdr.Filename != "" {
			in.Photo = &directory.PhotoUpload{
				Filename:    hdr.Filename,
				ContentType: hdr.Header.Get("Content-Type"),
				Body:        file,
			}
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		writeError(w, r, fmt.Errorf("%w: unreadable photo", apperr.ErrInvalidInput))
		return
	}

	e, err := h.directory.Save(r.Context(), who, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, e)
}

func (h *EmployeeHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	who, _ := identityFromContext(r.Context())
	id, err := employeeID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.directory.Delete(r.Context(), who, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"success": true, "message": fmt.Sprintf("Employee %d deleted.", id)})
}
