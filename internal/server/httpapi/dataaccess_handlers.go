package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/server/services"
)

type readersRequest struct {
	Readers *[]string `json:"readers"`
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.ErrNotFound
	}
	return id, nil
}

func (h *Handler) listOwned(w http.ResponseWriter, r *http.Request) {
	username, _ := caller(r)
	list, err := h.data.ListOwned(r.Context(), username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(list))
}

func (h *Handler) listGranted(w http.ResponseWriter, r *http.Request) {
	username, _ := caller(r)
	list, err := h.data.ListGranted(r.Context(), username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(list))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	username, _ := caller(r)

	if r.ContentLength > h.maxUpload {
		writeJSON(w, http.StatusRequestEntityTooLarge, detail{detailTooLarge})
		return
	}
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, err)
			return
		}
		h.writeError(w, r, common.FieldErrors{"file": {"No file was submitted."}})
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, common.FieldErrors{"file": {"No file was submitted."}})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.data.Create(r.Context(), username, services.Upload{FileName: hdr.Filename, Data: data})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(d))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	username, _ := caller(r)
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.data.Get(r.Context(), username, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(d))
}

func (h *Handler) updateReaders(w http.ResponseWriter, r *http.Request) {
	username, _ := caller(r)
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var in readersRequest
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.Readers == nil {
		h.writeError(w, r, common.FieldErrors{"readers": {"This field is required."}})
		return
	}

	d, err := h.data.UpdateReaders(r.Context(), username, id, *in.Readers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(d))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	username, _ := caller(r)
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.data.Delete(r.Context(), username, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	username, token := caller(r)
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.data.Download(r.Context(), username, token, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": p.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}
