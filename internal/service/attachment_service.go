package service

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/jobs"
	"github.com/signly/signage-api/pkg/storage"
)

// Upload field roles. Media accepts images and videos; document explicitly
// rejects anything image- or video-like.
const (
	FieldRoleMedia    = "media"
	FieldRoleDocument = "document"
)

// legacyUploadPrefix marks attachment paths written before blob storage
// existed; they live on the local filesystem.
const legacyUploadPrefix = "/uploads/"

// Generic placeholder MIME values that trigger extension-based inference.
var genericMIMETypes = map[string]struct{}{
	"application/octet-stream": {},
	"binary/octet-stream":      {},
}

var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
}

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
}

type blobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	List(ctx context.Context, prefix, search string) ([]storage.ObjectInfo, error)
	Remove(ctx context.Context, paths []string) error
	PublicURL(path string) string
	CreateSignedUploadURL(ctx context.Context, path string) (string, error)
	ObjectPathFromURL(raw string) (string, bool)
}

type localFileStore interface {
	Delete(filename string) error
}

type cleanupDispatcher interface {
	Enqueue(job jobs.Job) error
}

// AttachmentMeta is resolved file metadata with hints applied.
type AttachmentMeta struct {
	FileName  string
	MIMEType  string
	SizeBytes int64
}

// UploadedFile is a freshly received binary buffered on disk.
type UploadedFile struct {
	FileName string
	MIMEType string
	Size     int64
	Data     []byte
	TempPath string
}

// StoredAttachment is the result of pushing a binary into blob storage.
type StoredAttachment struct {
	URL        string
	ObjectPath string
}

// AttachmentServiceConfig tunes consistency polling.
type AttachmentServiceConfig struct {
	PollAttempts int
	PollDelay    time.Duration
}

// AttachmentService owns the lifecycle of externally stored attachment
// blobs: validation, upload, read-after-write polling and best-effort
// removal.
type AttachmentService struct {
	blobs   blobStore
	local   localFileStore
	cleanup cleanupDispatcher
	logger  *zap.Logger
	cfg     AttachmentServiceConfig
}

// NewAttachmentService constructs the service.
func NewAttachmentService(blobs blobStore, local localFileStore, cleanup cleanupDispatcher, logger *zap.Logger, cfg AttachmentServiceConfig) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 4
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = 250 * time.Millisecond
	}
	return &AttachmentService{blobs: blobs, local: local, cleanup: cleanup, logger: logger, cfg: cfg}
}

// ResolveMetadata sanitises the filename and infers a usable MIME type when
// the declared one is missing or a generic binary placeholder. Inference
// tries the file extension of every hint reference in order before falling
// back to the raw declared value.
func (s *AttachmentService) ResolveMetadata(fileNameHint, mimeHint string, sizeHint int64, referenceHints []string) AttachmentMeta {
	meta := AttachmentMeta{
		FileName:  sanitizeFileName(fileNameHint),
		MIMEType:  strings.TrimSpace(mimeHint),
		SizeBytes: sizeHint,
	}

	_, generic := genericMIMETypes[strings.ToLower(meta.MIMEType)]
	if meta.MIMEType != "" && !generic {
		return meta
	}

	hints := make([]string, 0, len(referenceHints)+1)
	hints = append(hints, referenceHints...)
	hints = append(hints, meta.FileName)
	for _, hint := range hints {
		if inferred := mimeFromExtension(hint); inferred != "" {
			meta.MIMEType = inferred
			return meta
		}
	}
	// Nothing matched: keep whatever the caller declared.
	return meta
}

// ValidateUpload checks a binary against its field role.
func (s *AttachmentService) ValidateUpload(role string, upload UploadedFile) error {
	visual := isVisualMIME(upload.MIMEType) || isVisualExtension(upload.FileName)
	switch role {
	case FieldRoleMedia:
		if !visual {
			return appErrors.Clone(appErrors.ErrValidation, "media field requires an image or video file")
		}
	case FieldRoleDocument:
		if visual {
			return appErrors.Clone(appErrors.ErrValidation, "document field does not accept image or video files")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown upload field role")
	}
	return nil
}

// Store uploads the binary under a date-scoped unique key and resolves its
// durable public URL. The buffered temp copy is removed on every exit path.
func (s *AttachmentService) Store(ctx context.Context, upload UploadedFile) (*StoredAttachment, error) {
	defer s.discardTemp(upload.TempPath)

	ext := strings.ToLower(path.Ext(upload.FileName))
	objectPath := fmt.Sprintf("%s/%s%s", time.Now().UTC().Format("2006-01-02"), uuid.NewString(), ext)

	meta := s.ResolveMetadata(upload.FileName, upload.MIMEType, upload.Size, nil)
	if err := s.blobs.Upload(ctx, objectPath, upload.Data, meta.MIMEType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}

	return &StoredAttachment{
		URL:        s.blobs.PublicURL(objectPath),
		ObjectPath: objectPath,
	}, nil
}

// CreateSignedUploadURL prepares a direct-upload slot for the client and
// returns both the signed URL and the public URL the object will have.
func (s *AttachmentService) CreateSignedUploadURL(ctx context.Context, fileName string) (signedURL, publicURL string, err error) {
	ext := strings.ToLower(path.Ext(sanitizeFileName(fileName)))
	objectPath := fmt.Sprintf("%s/%s%s", time.Now().UTC().Format("2006-01-02"), uuid.NewString(), ext)
	signedURL, err = s.blobs.CreateSignedUploadURL(ctx, objectPath)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign upload url")
	}
	return signedURL, s.blobs.PublicURL(objectPath), nil
}

// WaitUntilReadable polls the blob listing until the referenced object is
// visible, absorbing the storage backend's read-after-write window. It
// returns true immediately for references outside managed blob storage.
func (s *AttachmentService) WaitUntilReadable(ctx context.Context, reference string) bool {
	objectPath, managed := s.blobs.ObjectPathFromURL(reference)
	if !managed {
		return true
	}
	dir, name := path.Split(objectPath)
	dir = strings.TrimSuffix(dir, "/")

	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(s.cfg.PollDelay):
			}
		}
		objects, err := s.blobs.List(ctx, dir, name)
		if err != nil {
			s.logger.Sugar().Warnw("attachment readability probe failed", "reference", reference, "error", err)
			continue
		}
		for _, obj := range objects {
			if obj.Name == name {
				return true
			}
		}
	}
	return false
}

// Remove deletes the referenced attachment, best effort: blob storage is
// tried first (absence counts as success) and only legacy local-upload
// paths fall back to filesystem deletion. Failures are logged, never
// propagated, so cleanup cannot block the primary mutation.
func (s *AttachmentService) Remove(ctx context.Context, reference string) {
	if reference == "" {
		return
	}
	if objectPath, managed := s.blobs.ObjectPathFromURL(reference); managed {
		if err := s.blobs.Remove(ctx, []string{objectPath}); err != nil {
			s.logger.Sugar().Warnw("attachment blob cleanup failed", "path", objectPath, "error", err)
		}
		return
	}
	if idx := strings.Index(reference, legacyUploadPrefix); idx >= 0 {
		name := reference[idx+len(legacyUploadPrefix):]
		if err := s.local.Delete(name); err != nil {
			s.logger.Sugar().Warnw("legacy attachment cleanup failed", "file", name, "error", err)
		}
	}
}

// RemoveAsync queues the removal on the cleanup dispatcher so the caller's
// mutation returns without waiting; the handler retries transient failures.
func (s *AttachmentService) RemoveAsync(reference string) {
	if reference == "" {
		return
	}
	if s.cleanup == nil {
		s.Remove(context.Background(), reference)
		return
	}
	err := s.cleanup.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "attachment_cleanup",
		Payload: reference,
	})
	if err != nil {
		s.logger.Sugar().Warnw("cleanup enqueue failed, removing inline", "reference", reference, "error", err)
		s.Remove(context.Background(), reference)
	}
}

// CleanupHandler adapts Remove for the jobs queue.
func (s *AttachmentService) CleanupHandler(ctx context.Context, job jobs.Job) error {
	reference, ok := job.Payload.(string)
	if !ok || reference == "" {
		return nil
	}
	s.Remove(ctx, reference)
	return nil
}

// IsManagedReference reports whether the reference points into storage this
// engine controls: its blob bucket or the legacy local upload directory.
func (s *AttachmentService) IsManagedReference(reference string) bool {
	if _, managed := s.blobs.ObjectPathFromURL(reference); managed {
		return true
	}
	return strings.Contains(reference, legacyUploadPrefix)
}

func (s *AttachmentService) discardTemp(tempPath string) {
	if tempPath == "" {
		return
	}
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		s.logger.Sugar().Warnw("temp upload cleanup failed", "path", tempPath, "error", err)
	}
}

// DeriveType computes the display content type from attachment MIME and
// whether free text accompanies it.
func DeriveType(attachmentRef, mimeType string, hasContent bool) string {
	if attachmentRef == "" {
		return models.TypeText
	}
	// A declared MIME type is authoritative; extensions are a fallback for
	// references with no usable MIME.
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		if hasContent {
			return models.TypeMixed
		}
		return models.TypeImage
	case strings.HasPrefix(mimeType, "video/") || isVideoExtension(attachmentRef):
		if hasContent {
			return models.TypeMixedVideo
		}
		return models.TypeVideo
	case isVisualExtension(attachmentRef):
		if hasContent {
			return models.TypeMixed
		}
		return models.TypeImage
	default:
		if hasContent {
			return models.TypeMixedDocument
		}
		return models.TypeDocument
	}
}

// DefaultMediaDimensions fills a 16:9 placeholder for visual media without
// declared dimensions.
func DefaultMediaDimensions(contentType string, width, height *int) (*int, *int) {
	visual := contentType == models.TypeImage || contentType == models.TypeVideo ||
		contentType == models.TypeMixed || contentType == models.TypeMixedVideo
	if !visual {
		return width, height
	}
	if width == nil || height == nil {
		w, h := 1920, 1080
		return &w, &h
	}
	return width, height
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			continue
		}
		b.WriteRune(r)
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		cleaned = "file"
	}
	if runes := []rune(cleaned); len(runes) > 255 {
		cleaned = string(runes[len(runes)-255:])
	}
	return cleaned
}

func mimeFromExtension(reference string) string {
	if cut := strings.IndexAny(reference, "?#"); cut >= 0 {
		reference = reference[:cut]
	}
	ext := strings.ToLower(path.Ext(reference))
	if ext == "" {
		return ""
	}
	if m, ok := imageExtensions[ext]; ok {
		return m
	}
	if m, ok := videoExtensions[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	return ""
}

func isVisualMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "video/")
}

func isVisualExtension(reference string) bool {
	if cut := strings.IndexAny(reference, "?#"); cut >= 0 {
		reference = reference[:cut]
	}
	ext := strings.ToLower(path.Ext(reference))
	_, image := imageExtensions[ext]
	_, video := videoExtensions[ext]
	return image || video
}

func isVideoExtension(reference string) bool {
	if cut := strings.IndexAny(reference, "?#"); cut >= 0 {
		reference = reference[:cut]
	}
	_, video := videoExtensions[strings.ToLower(path.Ext(reference))]
	return video
}
