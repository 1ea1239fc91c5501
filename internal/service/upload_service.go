package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/models"
	"github.com/noah-isme/linkup-messaging-api/internal/observability"
	"github.com/noah-isme/linkup-messaging-api/internal/repository"
)

// Attachment kinds rendered by clients.
const (
	AttachmentImage = "image"
	AttachmentVideo = "video"
	AttachmentFile  = "file"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadScanFailed indicates validation of the file failed.
	ErrUploadScanFailed = errors.New("file scanning failed")
	// ErrUploadMissing indicates no file was supplied.
	ErrUploadMissing = errors.New("file is required")
	// ErrUploadStorageUnavailable indicates no object store is configured.
	ErrUploadStorageUnavailable = errors.New("attachment storage is not configured")
)

var allowedDocumentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/zip":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.ms-excel": {},
	"text/plain":               {},
	"text/csv":                 {},
}

// FileStorage abstracts upload destinations. Returned URLs must be publicly fetchable.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// UploadService validates attachments and pushes them to object storage.
type UploadService interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentUploadResponse, error)
}

type uploadService struct {
	storage FileStorage
	repo    repository.UploadRepository
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, repo repository.UploadRepository, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &uploadService{
		storage: storage,
		repo:    repo,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/linkup-messaging-api/internal/service/upload"),
	}
}

func (s *uploadService) Upload(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentUploadResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.AttachmentUploadResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "attachments.upload", trace.WithAttributes(
		attribute.Int64("upload.max_bytes", s.maxSize),
		attribute.String("upload.user_id", identity.ID),
	))
	defer span.End()

	start := time.Now()
	defer func() { observability.UploadLatency().Observe(time.Since(start).Seconds()) }()

	if file == nil {
		return dto.AttachmentUploadResponse{}, reject(span, "", ErrUploadMissing)
	}
	if s.storage == nil {
		return dto.AttachmentUploadResponse{}, reject(span, "", ErrUploadStorageUnavailable)
	}

	payload, err := s.read(file)
	if err != nil {
		reason := ""
		if errors.Is(err, ErrUploadTooLarge) {
			reason = "size"
		}
		return dto.AttachmentUploadResponse{}, reject(span, reason, err)
	}

	mimeType := normalizeMime(mimetype.Detect(payload).String())
	span.SetAttributes(attribute.String("upload.detected_mime", mimeType))
	kind, allowed := attachmentKind(mimeType)
	if !allowed {
		return dto.AttachmentUploadResponse{}, reject(span, "type", ErrUploadTypeNotAllowed)
	}
	if err := s.scan(payload, mimeType); err != nil {
		return dto.AttachmentUploadResponse{}, reject(span, "scan", err)
	}

	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])
	displayName := displayFileName(file.Filename)

	existing, err := s.repo.FindByChecksum(ctx, identity.ID, checksum)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "reused")
		return uploadResponse(existing, displayName), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Warn().Err(err).Str("user_id", identity.ID).Msg("attachment dedup lookup failed")
	}

	storedName := sanitizeFileName(file.Filename)
	url, err := s.storage.Upload(ctx, storedName, bytes.NewReader(payload))
	if err != nil {
		return dto.AttachmentUploadResponse{}, reject(span, "storage", err)
	}

	record := models.AttachmentUpload{
		UserID:    identity.ID,
		FileName:  storedName,
		URL:       url,
		Kind:      kind,
		MimeType:  mimeType,
		SizeBytes: int64(len(payload)),
		Checksum:  checksum,
	}
	if err := s.repo.Create(ctx, &record); err != nil {
		return dto.AttachmentUploadResponse{}, reject(span, "", fmt.Errorf("record attachment: %w", err))
	}

	observability.UploadRequests().WithLabelValues(kind).Inc()
	span.SetStatus(codes.Ok, "stored")
	return uploadResponse(record, displayName), nil
}

// read buffers at most maxSize+1 bytes so oversized bodies are detected
// even when the multipart header under-reports the size.
func (s *uploadService) read(file *multipart.FileHeader) ([]byte, error) {
	if file.Size > s.maxSize {
		return nil, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	defer handle.Close()

	payload, err := io.ReadAll(io.LimitReader(handle, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(payload)) > s.maxSize {
		return nil, ErrUploadTooLarge
	}
	return payload, nil
}

// reject marks the span failed and, for a non-empty reason, counts the rejection.
func reject(span trace.Span, reason string, err error) error {
	if reason != "" {
		observability.UploadRejected().WithLabelValues(reason).Inc()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func uploadResponse(record models.AttachmentUpload, name string) dto.AttachmentUploadResponse {
	if name == "" {
		name = record.FileName
	}
	return dto.AttachmentUploadResponse{
		Attachment: dto.Attachment{
			URL:  record.URL,
			Type: record.Kind,
			Name: name,
		},
		SizeBytes: record.SizeBytes,
		MimeType:  record.MimeType,
		Checksum:  record.Checksum,
	}
}

func (s *uploadService) scan(payload []byte, mime string) error {
	if mime != "application/zip" && !strings.Contains(mime, "openxmlformats") {
		return nil
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrUploadScanFailed
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(s.maxSize*20) {
			return fmt.Errorf("zip archive uncompressed size too large: %w", ErrUploadScanFailed)
		}
	}
	return nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func displayFileName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

func normalizeMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	if lower == "application/x-zip-compressed" {
		return "application/zip"
	}
	return lower
}

func attachmentKind(mime string) (string, bool) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return AttachmentImage, true
	case strings.HasPrefix(mime, "video/"):
		return AttachmentVideo, true
	}
	if _, ok := allowedDocumentTypes[mime]; ok {
		return AttachmentFile, true
	}
	return "", false
}
