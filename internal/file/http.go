package file

import (
	"errors"
	"mime/multipart"
	"net/http"

	"gitvault/internal/apperr"
	"gitvault/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterRoutes mounts file and storage operations under the provided group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/files", handler.uploadFile)
	group.POST("/files/batch", handler.uploadBatch)
	group.GET("/files", handler.listFiles)
	group.GET("/files/:fileID", handler.getFile)
	group.GET("/files/:fileID/download", handler.downloadFile)
	group.DELETE("/files/:fileID", handler.deleteFile)
	group.POST("/files/batch-delete", handler.deleteBatch)
	group.GET("/storage/stats", handler.storageStats)
	group.POST("/buckets/:bucketID/sync", handler.syncBucket)
	group.POST("/buckets/validate", handler.validateBuckets)
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) uploadFile(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, apperr.New(apperr.KindValidation, "http.uploadFile", "file field is required"))
		return
	}

	in, closeFn, err := inputFromHeader(fileHeader)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "http.uploadFile", "open upload", err))
		return
	}
	defer closeFn()

	result, err := h.service.Upload(c.Request.Context(), user.ID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, result)
}

func (h *httpHandler) uploadBatch(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "http.uploadBatch", "multipart form required", err))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		respondError(c, apperr.New(apperr.KindValidation, "http.uploadBatch", "files field is required"))
		return
	}

	inputs := make([]UploadInput, 0, len(headers))
	for _, fh := range headers {
		in, closeFn, err := inputFromHeader(fh)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindValidation, "http.uploadBatch", "open upload", err))
			return
		}
		defer closeFn()
		inputs = append(inputs, in)
	}

	result, err := h.service.UploadBatch(c.Request.Context(), user.ID, inputs)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusMultiStatus
	}
	respondData(c, status, result)
}

func (h *httpHandler) listFiles(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	files, err := h.service.List(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"files": files})
}

func (h *httpHandler) getFile(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		respondError(c, apperr.New(apperr.KindValidation, "http.getFile", "invalid file id"))
		return
	}

	meta, err := h.service.Get(c.Request.Context(), user.ID, fileID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, meta)
}

// downloadFile redirects to the provider-hosted asset after the
// ownership check. The asset URL is stable, so no link signing happens here.
func (h *httpHandler) downloadFile(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		respondError(c, apperr.New(apperr.KindValidation, "http.downloadFile", "invalid file id"))
		return
	}

	meta, err := h.service.Get(c.Request.Context(), user.ID, fileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, meta.DownloadURL)
}

func (h *httpHandler) deleteFile(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		respondError(c, apperr.New(apperr.KindValidation, "http.deleteFile", "invalid file id"))
		return
	}

	deleted, err := h.service.Delete(c.Request.Context(), user.ID, fileID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, deleted)
}

func (h *httpHandler) deleteBatch(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var body struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "http.deleteBatch", "invalid request body", err))
		return
	}

	ids := make([]uuid.UUID, 0, len(body.FileIDs))
	for _, raw := range body.FileIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "http.deleteBatch", "invalid file id "+raw))
			return
		}
		ids = append(ids, id)
	}

	result, err := h.service.DeleteBatch(c.Request.Context(), user.ID, ids)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusMultiStatus
	}
	respondData(c, status, result)
}

func (h *httpHandler) storageStats(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, stats)
}

func (h *httpHandler) syncBucket(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	bucketID, err := uuid.Parse(c.Param("bucketID"))
	if err != nil {
		respondError(c, apperr.New(apperr.KindValidation, "http.syncBucket", "invalid bucket id"))
		return
	}

	report, err := h.service.SyncBucket(c.Request.Context(), user.ID, bucketID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, report)
}

func (h *httpHandler) validateBuckets(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	report, err := h.service.ValidateBuckets(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, report)
}

func inputFromHeader(fh *multipart.FileHeader) (UploadInput, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return UploadInput{}, nil, err
	}
	in := UploadInput{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Content:     f,
	}
	if in.ContentType == "" {
		in.ContentType = "application/octet-stream"
	}
	return in, func() { f.Close() }, nil
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   gin.H{"kind": "unauthorized", "message": "unauthorized"},
	})
}

func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := "internal error"
	detail := ""

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
		if appErr.Err != nil {
			detail = appErr.Err.Error()
		}
	}

	body := gin.H{"kind": string(kind), "message": message}
	if detail != "" {
		body["detail"] = detail
	}
	c.JSON(statusFor(kind), gin.H{"success": false, "error": body})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAllocation:
		return http.StatusConflict
	case apperr.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
