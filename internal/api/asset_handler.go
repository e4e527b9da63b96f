package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"elecmate/internal/database"
	"elecmate/internal/storage"
)

const (
	maxAssetSize       = 5 << 20 // 5 MiB
	dailyUploadLimit   = 50
	assetURLDuration   = 15 * time.Minute
	assetListURLExpiry = 10 * time.Minute
)

// Upload kinds. A photo attaches to the caller's Elec-ID profile, a logo
// to the caller's employer identity.
const (
	assetKindPhoto = "photo"
	assetKindLogo  = "logo"
)

var assetContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// AssetHandler handles image uploads and presigned access.
type AssetHandler struct {
	DB        *gorm.DB
	Storage   *storage.Client
	Redis     redis.UniversalClient
	Logger    *slog.Logger
	ClamdAddr string
}

// NewAssetHandler returns an AssetHandler instance.
func NewAssetHandler(db *gorm.DB, storageClient *storage.Client, redisClient redis.UniversalClient, logger *slog.Logger, clamdAddr string) *AssetHandler {
	return &AssetHandler{
		DB:        db,
		Storage:   storageClient,
		Redis:     redisClient,
		Logger:    logger,
		ClamdAddr: clamdAddr,
	}
}

// UploadAsset accepts an image upload, scans it when clamd is configured,
// stores it and attaches the key to the profile or employer row.
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	kind := strings.ToLower(strings.TrimSpace(c.PostForm("kind")))
	if kind == "" {
		kind = assetKindPhoto
	}
	if kind != assetKindPhoto && kind != assetKindLogo {
		BadRequest(c, "kind must be photo or logo")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > maxAssetSize {
		Error(c, http.StatusRequestEntityTooLarge, "file exceeds the 5 MiB limit")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(file.Header.Get("Content-Type")))
	ext, allowed := assetContentTypes[contentType]
	if !allowed {
		BadRequest(c, "only png, jpeg and webp images are accepted")
		return
	}

	ctx := c.Request.Context()

	// Daily per-user cap.
	rateKey := fmt.Sprintf("rate:upload:%d:%s", userID, time.Now().UTC().Format("20060102"))
	if count, err := incrWithTTL(ctx, h.Redis, rateKey, 24*time.Hour); err == nil && count > dailyUploadLimit {
		Error(c, http.StatusTooManyRequests, "daily upload limit reached")
		return
	}

	if strings.TrimSpace(h.ClamdAddr) != "" {
		if !h.scanUpload(c, file) {
			return
		}
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer fileReader.Close()

	objectKey := fmt.Sprintf("user-assets/%d/%s%s", userID, uuid.NewString(), ext)

	if _, err := h.Storage.UploadFile(ctx, objectKey, fileReader, file.Size, contentType); err != nil {
		h.Logger.Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	if err := h.attachAsset(c, userID, kind, objectKey); err != nil {
		return
	}

	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

// scanUpload streams the file through clamd. Returns false after writing
// the response when the upload must not proceed.
func (h *AssetHandler) scanUpload(c *gin.Context, file *multipart.FileHeader) bool {
	clamdClient := clamd.NewClamd(h.ClamdAddr)

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return false
	}

	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
	fileReader.Close()
	if err != nil {
		h.Logger.Error("scan file", slog.String("error", err.Error()))
		Internal(c, "failed to scan file")
		return false
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			BadRequest(c, "malicious file detected")
			return false
		}
	}
	return true
}

// attachAsset records the stored key on the owning row.
func (h *AssetHandler) attachAsset(c *gin.Context, userID uint, kind, objectKey string) error {
	ctx := c.Request.Context()

	switch kind {
	case assetKindLogo:
		var employer database.Employer
		if err := h.DB.WithContext(ctx).Where("user_id = ?", userID).First(&employer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				Forbidden(c, "employer profile missing")
				return err
			}
			Internal(c, "internal error")
			return err
		}
		if err := h.DB.WithContext(ctx).Model(&employer).Update("logo_key", objectKey).Error; err != nil {
			h.Logger.Error("attach logo failed", slog.Any("error", err))
			Internal(c, "failed to save logo")
			return err
		}
	case assetKindPhoto:
		var profile database.ElecIDProfile
		if err := h.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				ErrorCode(c, http.StatusPreconditionFailed, "elec_id_required", "create your Elec-ID profile first")
				return err
			}
			Internal(c, "internal error")
			return err
		}
		if err := h.DB.WithContext(ctx).Model(&profile).Update("photo_key", objectKey).Error; err != nil {
			h.Logger.Error("attach photo failed", slog.Any("error", err))
			Internal(c, "failed to save photo")
			return err
		}
	}
	return nil
}

// ListAssets lists the caller's uploads, newest first.
func (h *AssetHandler) ListAssets(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limitStr := c.DefaultQuery("limit", "60")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	prefix := fmt.Sprintf("user-assets/%d/", userID)
	objects, err := h.Storage.ListObjects(c.Request.Context(), prefix, limit)
	if err != nil {
		h.Logger.Error("list assets", slog.String("error", err.Error()))
		Internal(c, "failed to list assets")
		return
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		url, err := h.Storage.GeneratePresignedURL(c.Request.Context(), obj.Key, assetListURLExpiry)
		if err != nil {
			h.Logger.Error("generate asset url", slog.String("objectKey", obj.Key), slog.String("error", err.Error()))
			continue
		}
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"previewUrl":   url,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAssetURL returns a short-lived presigned URL for one of the caller's
// own objects.
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if !isValidUserAssetObjectKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), objectKey, assetURLDuration)
	if err != nil {
		h.Logger.Error("generate presigned url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// isValidUserAssetObjectKey guards presigned access: keys must sit under
// the caller's own prefix and look like one of the accepted image types.
func isValidUserAssetObjectKey(userID uint, key string) bool {
	if key == "" || !utf8.ValidString(key) {
		return false
	}
	expected := fmt.Sprintf("user-assets/%d/", userID)
	if !strings.HasPrefix(key, expected) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	if len(key) > 200 {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
