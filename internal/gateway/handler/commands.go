package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"atelier/internal/edit"
	"atelier/internal/llmtool"
	"atelier/internal/types"
)

func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.s.Snapshot())
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"status":     h.s.Status(),
		"configured": h.s.Configured(),
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &in) {
		return
	}
	msg, err := h.s.SendMessage(r.Context(), in.Text)
	if err != nil && msg.ID == "" {
		h.fail(w, err)
		return
	}
	out := map[string]any{"message": msg}
	if err != nil {
		// The apology is already in the chat log.
		out["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// UploadAsset accepts a multipart form with a "file" part and an optional
// "name" field.
func (h *Handler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", err.Error(), nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "file part is required", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", err.Error(), nil)
		return
	}
	mime := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	a, err := h.s.UploadAsset(types.Blob{MIMEType: mime, Data: data}, name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.AssetRef{ID: a.ID, DisplayName: a.DisplayName, Kind: a.Kind})
}

func (h *Handler) ToggleAsset(w http.ResponseWriter, r *http.Request) {
	shared, err := h.s.ToggleAssetDisclosure(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"shared": shared})
}

// GenerateConcepts renders a pair from an explicit brief. The body uses the
// same field names as the generate_concepts tool.
func (h *Handler) GenerateConcepts(w http.ResponseWriter, r *http.Request) {
	var in map[string]any
	if !decode(w, r, &in) {
		return
	}
	if err := h.s.GenerateConcepts(llmtool.DecodeConceptArgs(in)); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *Handler) SelectConcept(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.s.SelectConcept(strings.TrimSpace(in.ID)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) FinalizeConcept(w http.ResponseWriter, r *http.Request) {
	if err := h.s.FinalizeConcept(chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) OpenSpecification(w http.ResponseWriter, r *http.Request) {
	if err := h.s.OpenSpecification(chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editRequest struct {
	ImageID     string `json:"imageId"`
	Instruction string `json:"instruction"`
	// Mask and Composite are base64 image payloads.
	Mask              []byte `json:"mask,omitempty"`
	MaskMIMEType      string `json:"maskMimeType,omitempty"`
	Composite         []byte `json:"composite,omitempty"`
	CompositeMIMEType string `json:"compositeMimeType,omitempty"`
}

func (h *Handler) ApplyEdit(w http.ResponseWriter, r *http.Request) {
	var in editRequest
	if !decode(w, r, &in) {
		return
	}
	req := edit.Request{
		ConceptID:   chi.URLParam(r, "id"),
		ImageID:     in.ImageID,
		Instruction: in.Instruction,
		Mask:        blob(in.Mask, in.MaskMIMEType),
		Composite:   blob(in.Composite, in.CompositeMIMEType),
	}
	if err := h.s.ApplyEdit(r.Context(), req); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *Handler) RefreshDerivatives(w http.ResponseWriter, r *http.Request) {
	if err := h.s.RefreshDerivatives(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RegenerateTechPack(w http.ResponseWriter, r *http.Request) {
	tp, err := h.s.RegenerateTechPack(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tp)
}

func (h *Handler) Produce(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Scenario string           `json:"scenario"`
		Mode     types.RunwayKind `json:"mode"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Mode == "" {
		in.Mode = types.RunwayPhoto
	}
	if err := h.s.StartProduction(chi.URLParam(r, "id"), in.Scenario, in.Mode); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *Handler) CancelProduction(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.s.CancelProduction()})
}

func (h *Handler) Scenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.s.Scenarios())
}

func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	b, ok := h.s.Media(chi.URLParam(r, "id"))
	if !ok || b.Empty() {
		writeError(w, http.StatusNotFound, "not_found", "media not found", nil)
		return
	}
	w.Header().Set("Content-Type", b.MIMEType)
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	_, _ = w.Write(b.Data)
}

func blob(data []byte, mime string) types.Blob {
	if len(data) == 0 {
		return types.Blob{}
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return types.Blob{MIMEType: mime, Data: data}
}
