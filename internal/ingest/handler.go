package ingest

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vendora/media/internal/middleware"
	"github.com/vendora/media/internal/response"
)

// Handler holds HTTP handlers for the upload ingestion endpoints.
type Handler struct {
	adapter  *Adapter
	assets   AssetStore
	tmpDir   string
	maxBytes int64
}

// NewHandler creates a new ingest Handler.
func NewHandler(adapter *Adapter, assets AssetStore, tmpDir string, maxBytes int64) *Handler {
	return &Handler{adapter: adapter, assets: assets, tmpDir: tmpDir, maxBytes: maxBytes}
}

type uploadResult struct {
	URL string `json:"url" example:"http://localhost:9000/media/thumbnails/cover-1a2b3c4d.jpg"`
}

// UploadFile godoc
//
//	@Summary		Upload a file
//	@Description	Accepts one multipart file plus a category, stores it in object storage, and returns the public URL.
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file		formData	file	true	"File to upload"
//	@Param			category	formData	string	true	"Logical storage folder, e.g. thumbnails"
//	@Success		200	{object}	response.Envelope{data=uploadResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/upload-file [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	fh, category, err := parseUpload(w, r, h.maxBytes)
	if err != nil {
		// Transport-level limit violations are always the client's fault.
		response.BadRequest(w, err.Error())
		return
	}

	if fh == nil {
		response.BadRequest(w, "no file uploaded")
		return
	}
	if strings.TrimSpace(category) == "" {
		response.BadRequest(w, "category is required")
		return
	}

	localPath, err := spoolToDisk(fh, h.tmpDir)
	if err != nil {
		log.Printf("ingest: spool failed: %v", err)
		response.InternalError(w)
		return
	}

	// The adapter removes localPath on every outcome.
	obj, err := h.adapter.Store(r.Context(), localPath, category)
	if err != nil {
		response.StorageError(w, err.Error())
		return
	}

	h.recordAsset(r, obj, category)

	response.OK(w, uploadResult{URL: obj.URL})
}

// recordAsset persists the stored object for dashboard listings. Recording is
// best-effort: the object is already durable and the URL is the contract, so
// a failed insert is logged rather than failing the upload.
func (h *Handler) recordAsset(r *http.Request, obj *StoredObject, category string) {
	if h.assets == nil {
		return
	}
	uploadedBy, _ := r.Context().Value(middleware.SubjectKey).(string)
	a := &Asset{
		ID:          uuid.NewString(),
		Category:    strings.ToLower(strings.TrimSpace(category)),
		ObjectKey:   obj.Key,
		URL:         obj.URL,
		SizeBytes:   obj.Size,
		ContentType: obj.ContentType,
		UploadedBy:  uploadedBy,
	}
	if err := h.assets.Record(r.Context(), a); err != nil {
		log.Printf("ingest: asset record failed for %s: %v", obj.Key, err)
	}
}

// ListAssets godoc
//
//	@Summary		List uploaded assets
//	@Description	Returns the most recent assets in a category, newest first.
//	@Tags			assets
//	@Produce		json
//	@Security		BearerAuth
//	@Param			category	query		string	true	"Category to list"
//	@Param			limit		query		int		false	"Maximum number of records (default 50)"
//	@Success		200	{object}	response.Envelope{data=[]Asset}
//	@Failure		400	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/assets [get]
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	category := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("category")))
	if category == "" {
		response.BadRequest(w, "category is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			response.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	assets, err := h.assets.ListByCategory(r.Context(), category, limit)
	if err != nil {
		log.Printf("ingest: list assets failed: %v", err)
		response.InternalError(w)
		return
	}
	if assets == nil {
		assets = []*Asset{}
	}

	response.OK(w, assets)
}

// DeleteAsset godoc
//
//	@Summary		Delete an uploaded asset
//	@Description	Removes the object from storage and deletes its record.
//	@Tags			assets
//	@Produce		json
//	@Security		BearerAuth
//	@Param			assetID	path		string	true	"Asset ID"
//	@Success		200	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/assets/{assetID} [delete]
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "assetID")

	a, err := h.assets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			response.Error(w, http.StatusNotFound, "asset not found")
			return
		}
		response.InternalError(w)
		return
	}

	if err := h.adapter.Remove(r.Context(), a.ObjectKey); err != nil {
		log.Printf("ingest: object delete failed for %s: %v", a.ObjectKey, err)
		response.StorageError(w, err.Error())
		return
	}
	if err := h.assets.Delete(r.Context(), id); err != nil && !errors.Is(err, ErrAssetNotFound) {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]bool{"deleted": true})
}
