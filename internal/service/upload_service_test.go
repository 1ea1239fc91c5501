package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linkup-messaging-api/internal/repository"
)

type storageStub struct {
	uploaded bytes.Buffer
	calls    int
}

func (s *storageStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	s.calls++
	s.uploaded.Reset()
	_, err := s.uploaded.ReadFrom(reader)
	if err != nil {
		return "", err
	}
	return "https://cdn.example.com/" + name, nil
}

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestUploadServiceRejectsSize(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewUploadService(&storageStub{}, repository.NewUploadRepository(db), 1, testLogger())

	file := buildFileHeader(t, "file.pdf", bytes.Repeat([]byte("a"), 2*1024*1024))

	_, err := svc.Upload(asUser("alice"), file)
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestUploadServiceTypeValidation(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewUploadService(&storageStub{}, repository.NewUploadRepository(db), 5, testLogger())

	elf := append([]byte{0x7F, 'E', 'L', 'F', 0x02, 0x01, 0x01}, bytes.Repeat([]byte{0}, 64)...)
	file := buildFileHeader(t, "payload.bin", elf)
	_, err := svc.Upload(asUser("alice"), file)
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)
}

func TestUploadServiceRequiresIdentityAndFile(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewUploadService(&storageStub{}, repository.NewUploadRepository(db), 5, testLogger())

	_, err := svc.Upload(context.Background(), buildFileHeader(t, "image.png", pngHeader))
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Upload(asUser("alice"), nil)
	require.ErrorIs(t, err, ErrUploadMissing)
}

func TestUploadServiceSuccessAndDedup(t *testing.T) {
	db := setupServiceTestDB(t)
	storage := &storageStub{}
	svc := NewUploadService(storage, repository.NewUploadRepository(db), 5, testLogger())

	resp, err := svc.Upload(asUser("alice"), buildFileHeader(t, "Holiday Photo.PNG", pngHeader))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/holiday-photo.png", resp.URL)
	require.Equal(t, AttachmentImage, resp.Type)
	require.Equal(t, "Holiday Photo.PNG", resp.Name)
	require.Equal(t, "image/png", resp.MimeType)
	require.NotEmpty(t, resp.Checksum)

	again, err := svc.Upload(asUser("alice"), buildFileHeader(t, "copy.png", pngHeader))
	require.NoError(t, err)
	require.Equal(t, resp.URL, again.URL)
	require.Equal(t, "copy.png", again.Name)
	require.Equal(t, 1, storage.calls, "identical bytes are stored once per user")

	_, err = svc.Upload(asUser("bob"), buildFileHeader(t, "copy.png", pngHeader))
	require.NoError(t, err)
	require.Equal(t, 2, storage.calls)
}

func TestUploadServiceAcceptsDocuments(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewUploadService(&storageStub{}, repository.NewUploadRepository(db), 5, testLogger())

	resp, err := svc.Upload(asUser("alice"), buildFileHeader(t, "notes.txt", []byte("plain text notes")))
	require.NoError(t, err)
	require.Equal(t, AttachmentFile, resp.Type)
	require.Equal(t, "text/plain", resp.MimeType)
}

func TestUploadServiceStorageFailure(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewUploadService(failingStorage{}, repository.NewUploadRepository(db), 5, testLogger())

	_, err := svc.Upload(asUser("alice"), buildFileHeader(t, "image.png", pngHeader))
	require.EqualError(t, err, "bucket offline")
}

func TestMessageServiceUploadWithoutStorage(t *testing.T) {
	suite := newMessagingSuite(t)

	_, err := suite.messages.UploadAttachment(asUser("alice"), buildFileHeader(t, "image.png", pngHeader))
	require.ErrorIs(t, err, ErrUploadStorageUnavailable)
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
