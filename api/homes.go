package api

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/warp/stay-engine/engine"
)

const (
	maxUploadMemory = 32 << 20
	imagesField     = "images"
)

// =============================================================================
// HOME ENDPOINTS
// =============================================================================

// ListHomes returns every home, newest first.
// GET /api/homes
func (h *Handler) ListHomes(w http.ResponseWriter, r *http.Request) {
	homes, err := h.Engine.Properties.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toHomeDTOs(homes))
}

// GetHome reads through the property cache when one is configured.
// GET /api/homes/{id}
func (h *Handler) GetHome(w http.ResponseWriter, r *http.Request) {
	id := engine.PropertyID(urlParam(r, "id"))

	var (
		home *engine.Property
		err  error
	)
	if h.Homes != nil {
		home, err = h.Homes.Get(r.Context(), id, h.Engine.Properties.Get)
	} else {
		home, err = h.Engine.Properties.Get(r.Context(), id)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toHomeDTO(*home))
}

// CreateHome lists a home owned by the caller. Accepts a JSON body, or a
// multipart form with the JSON in "data" and files in "images".
// POST /api/homes
func (h *Handler) CreateHome(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req CreateHomeRequest
	var uploads []engine.Upload
	if isMultipart(r) {
		files, err := h.parseHomeForm(r, &req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		defer closeAll(files)
		uploads = toUploads(r.MultipartForm.File[imagesField], files)
	} else if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	home, err := h.Engine.Properties.Create(r.Context(), actor, req.toEngine())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(uploads) > 0 {
		if home, err = h.Engine.Properties.AttachImages(r.Context(), actor, home.ID, uploads); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeData(w, http.StatusCreated, toHomeDTO(*home))
}

// UpdateHome applies a partial update.
// PUT /api/homes/{id}
func (h *Handler) UpdateHome(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req UpdateHomeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	home, err := h.Engine.Properties.Update(r.Context(), actor, engine.PropertyID(urlParam(r, "id")), req.toEngine())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toHomeDTO(*home))
}

// ListOwnerHomes returns 404 when the owner has no homes.
// GET /api/homes/owner/{ownerId}
func (h *Handler) ListOwnerHomes(w http.ResponseWriter, r *http.Request) {
	homes, err := h.Engine.Properties.ListByOwner(r.Context(), engine.ActorID(urlParam(r, "ownerId")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toHomeDTOs(homes))
}

// HideHome takes a home out of the catalog. Admin only.
// PUT /api/homes/{id}/hide
func (h *Handler) HideHome(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req HideHomeRequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	home, err := h.Engine.Properties.Hide(r.Context(), actor, engine.PropertyID(urlParam(r, "id")), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toHomeDTO(*home))
}

// MarkHomeUnavailable is the owner's switch to stop new bookings.
// PUT /api/homes/{id}/unavailable
func (h *Handler) MarkHomeUnavailable(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	home, err := h.Engine.Properties.MarkUnavailable(r.Context(), actor, engine.PropertyID(urlParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toHomeDTO(*home))
}

// UploadHomeImages stores the "images" files and appends their URLs.
// POST /api/homes/{id}/images
func (h *Handler) UploadHomeImages(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if !isMultipart(r) {
		h.writeError(w, r, &engine.ValidationError{Field: imagesField, Message: "multipart/form-data required"})
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.writeError(w, r, &engine.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	headers := r.MultipartForm.File[imagesField]
	files, err := openAll(headers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeAll(files)

	home, err := h.Engine.Properties.AttachImages(r.Context(), actor, engine.PropertyID(urlParam(r, "id")), toUploads(headers, files))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toHomeDTO(*home))
}

// =============================================================================
// MULTIPART HELPERS
// =============================================================================

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseHomeForm decodes the "data" field into req and opens the images.
func (h *Handler) parseHomeForm(r *http.Request, req *CreateHomeRequest) ([]multipart.File, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, &engine.ValidationError{Field: "body", Message: err.Error()}
	}
	data := r.FormValue("data")
	if data == "" {
		return nil, &engine.ValidationError{Field: "data", Message: "required"}
	}
	if err := json.Unmarshal([]byte(data), req); err != nil {
		return nil, &engine.ValidationError{Field: "data", Message: "malformed JSON: " + err.Error()}
	}
	if err := h.check(req); err != nil {
		return nil, err
	}
	return openAll(r.MultipartForm.File[imagesField])
}

func openAll(headers []*multipart.FileHeader) ([]multipart.File, error) {
	files := make([]multipart.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(files)
			return nil, &engine.ValidationError{Field: imagesField, Message: "unreadable file " + fh.Filename}
		}
		files = append(files, f)
	}
	return files, nil
}

func closeAll(files []multipart.File) {
	for _, f := range files {
		f.Close()
	}
}

func toUploads(headers []*multipart.FileHeader, files []multipart.File) []engine.Upload {
	uploads := make([]engine.Upload, len(files))
	for i, f := range files {
		uploads[i] = engine.Upload{Name: headers[i].Filename, Body: f}
	}
	return uploads
}
