package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/storage"
)

const stubPublicBase = "https://blobs.example/storage/v1/object/public/announcements/"

// stubBlobStore fakes the bucket API. Objects become listable only after
// visibleAfter List calls, mimicking the read-after-write window.
type stubBlobStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	removed      []string
	listCalls    int
	visibleAfter int
	listErr      error
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{objects: map[string][]byte{}}
}

func (s *stubBlobStore) Upload(_ context.Context, objectPath string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectPath] = data
	return nil
}

func (s *stubBlobStore) List(_ context.Context, prefix, search string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.listCalls <= s.visibleAfter {
		return nil, nil
	}
	var out []storage.ObjectInfo
	for objectPath := range s.objects {
		if !strings.HasPrefix(objectPath, prefix) {
			continue
		}
		name := strings.TrimPrefix(objectPath, prefix+"/")
		if search == "" || strings.Contains(name, search) {
			out = append(out, storage.ObjectInfo{Name: name})
		}
	}
	return out, nil
}

func (s *stubBlobStore) Remove(_ context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, paths...)
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

func (s *stubBlobStore) PublicURL(objectPath string) string {
	return stubPublicBase + objectPath
}

func (s *stubBlobStore) CreateSignedUploadURL(_ context.Context, objectPath string) (string, error) {
	return stubPublicBase + objectPath + "?signed=1", nil
}

func (s *stubBlobStore) ObjectPathFromURL(raw string) (string, bool) {
	if strings.HasPrefix(raw, stubPublicBase) {
		return strings.TrimPrefix(raw, stubPublicBase), true
	}
	return "", false
}

type stubLocalStore struct {
	deleted []string
}

func (s *stubLocalStore) Delete(filename string) error {
	s.deleted = append(s.deleted, filename)
	return nil
}

func newAttachmentFixture(blobs *stubBlobStore) (*AttachmentService, *stubLocalStore) {
	local := &stubLocalStore{}
	svc := NewAttachmentService(blobs, local, nil, nil, AttachmentServiceConfig{
		PollAttempts: 3,
		PollDelay:    time.Millisecond,
	})
	return svc, local
}

func TestResolveMetadataInfersFromHints(t *testing.T) {
	svc, _ := newAttachmentFixture(newStubBlobStore())

	tests := []struct {
		name     string
		fileName string
		mime     string
		hints    []string
		want     string
	}{
		{"declared mime kept", "notes.pdf", "application/pdf", nil, "application/pdf"},
		{"octet stream replaced by hint", "file", "application/octet-stream", []string{"https://cdn.example/clip.mp4?sig=x"}, "video/mp4"},
		{"octet stream replaced by filename", "poster.PNG", "binary/octet-stream", nil, "image/png"},
		{"empty mime inferred", "photo.jpeg", "", nil, "image/jpeg"},
		{"nothing matches keeps declared", "blob", "application/octet-stream", []string{"https://cdn.example/data"}, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := svc.ResolveMetadata(tt.fileName, tt.mime, 10, tt.hints)
			assert.Equal(t, tt.want, meta.MIMEType)
		})
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\x\doc.docx`, "doc.docx"},
		{"we?ird*na:me.png", "weirdname.png"},
		{"   ", "file"},
		{"..", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFileName(tt.in), "input %q", tt.in)
	}

	capped := sanitizeFileName(strings.Repeat("é", 300))
	assert.True(t, utf8.ValidString(capped))
	assert.Equal(t, strings.Repeat("é", 255), capped)
}

func TestValidateUploadRoles(t *testing.T) {
	svc, _ := newAttachmentFixture(newStubBlobStore())

	image := UploadedFile{FileName: "a.png", MIMEType: "image/png"}
	pdf := UploadedFile{FileName: "a.pdf", MIMEType: "application/pdf"}

	assert.NoError(t, svc.ValidateUpload(FieldRoleMedia, image))
	assert.NoError(t, svc.ValidateUpload(FieldRoleDocument, pdf))

	err := svc.ValidateUpload(FieldRoleMedia, pdf)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = svc.ValidateUpload(FieldRoleDocument, image)
	require.Error(t, err)

	err = svc.ValidateUpload("banner", image)
	require.Error(t, err)
}

func TestStoreUploadsUnderDateScopedKey(t *testing.T) {
	blobs := newStubBlobStore()
	svc, _ := newAttachmentFixture(blobs)

	stored, err := svc.Store(context.Background(), UploadedFile{
		FileName: "poster.png",
		MIMEType: "image/png",
		Size:     4,
		Data:     []byte("data"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.ObjectPath, ".png"))
	assert.Contains(t, stored.ObjectPath, time.Now().UTC().Format("2006-01-02"))
	assert.Equal(t, stubPublicBase+stored.ObjectPath, stored.URL)
	assert.Contains(t, blobs.objects, stored.ObjectPath)
}

func TestWaitUntilReadable(t *testing.T) {
	t.Run("unmanaged reference is immediately readable", func(t *testing.T) {
		svc, _ := newAttachmentFixture(newStubBlobStore())
		assert.True(t, svc.WaitUntilReadable(context.Background(), "https://elsewhere.example/x.png"))
	})

	t.Run("polls until object appears", func(t *testing.T) {
		blobs := newStubBlobStore()
		blobs.visibleAfter = 2
		svc, _ := newAttachmentFixture(blobs)

		stored, err := svc.Store(context.Background(), UploadedFile{FileName: "a.png", MIMEType: "image/png", Data: []byte("x")})
		require.NoError(t, err)

		assert.True(t, svc.WaitUntilReadable(context.Background(), stored.URL))
		assert.Equal(t, 3, blobs.listCalls)
	})

	t.Run("gives up after the attempt limit", func(t *testing.T) {
		blobs := newStubBlobStore()
		blobs.visibleAfter = 100
		svc, _ := newAttachmentFixture(blobs)

		stored, err := svc.Store(context.Background(), UploadedFile{FileName: "a.png", MIMEType: "image/png", Data: []byte("x")})
		require.NoError(t, err)

		assert.False(t, svc.WaitUntilReadable(context.Background(), stored.URL))
		assert.Equal(t, 3, blobs.listCalls)
	})

	t.Run("probe errors are retried", func(t *testing.T) {
		blobs := newStubBlobStore()
		blobs.listErr = errors.New("storage flaking")
		svc, _ := newAttachmentFixture(blobs)

		stored, err := svc.Store(context.Background(), UploadedFile{FileName: "a.png", MIMEType: "image/png", Data: []byte("x")})
		require.NoError(t, err)
		assert.False(t, svc.WaitUntilReadable(context.Background(), stored.URL))
	})
}

func TestRemoveRoutesByReferenceKind(t *testing.T) {
	blobs := newStubBlobStore()
	svc, local := newAttachmentFixture(blobs)
	ctx := context.Background()

	stored, err := svc.Store(ctx, UploadedFile{FileName: "a.png", MIMEType: "image/png", Data: []byte("x")})
	require.NoError(t, err)

	svc.Remove(ctx, stored.URL)
	assert.Equal(t, []string{stored.ObjectPath}, blobs.removed)
	assert.Empty(t, local.deleted)

	svc.Remove(ctx, "https://old.example/uploads/legacy.jpg")
	assert.Equal(t, []string{"legacy.jpg"}, local.deleted)

	svc.Remove(ctx, "")
	assert.Len(t, blobs.removed, 1)
}

func TestIsManagedReference(t *testing.T) {
	svc, _ := newAttachmentFixture(newStubBlobStore())

	assert.True(t, svc.IsManagedReference(stubPublicBase+"2026-01-01/x.png"))
	assert.True(t, svc.IsManagedReference("https://old.example/uploads/legacy.jpg"))
	assert.False(t, svc.IsManagedReference("https://cdn.example/random.png"))
}

func TestDeriveType(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		mime       string
		hasContent bool
		want       string
	}{
		{"no attachment", "", "", true, models.TypeText},
		{"image only", "x.png", "image/png", false, models.TypeImage},
		{"image with content", "x.png", "image/png", true, models.TypeMixed},
		{"video only", "x.mp4", "video/mp4", false, models.TypeVideo},
		{"video with content", "x.mp4", "", true, models.TypeMixedVideo},
		{"document only", "x.pdf", "application/pdf", false, models.TypeDocument},
		{"document with content", "x.pdf", "application/pdf", true, models.TypeMixedDocument},
		{"image by extension alone", "poster.webp", "", false, models.TypeImage},
		{"video mime wins over image extension", "thumb.png", "video/mp4", false, models.TypeVideo},
		{"image mime wins over video extension", "clip.mp4", "image/png", false, models.TypeImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveType(tt.ref, tt.mime, tt.hasContent))
		})
	}
}

func TestDefaultMediaDimensions(t *testing.T) {
	w, h := DefaultMediaDimensions(models.TypeImage, nil, nil)
	require.NotNil(t, w)
	require.NotNil(t, h)
	assert.Equal(t, 1920, *w)
	assert.Equal(t, 1080, *h)

	declaredW, declaredH := 640, 480
	w, h = DefaultMediaDimensions(models.TypeVideo, &declaredW, &declaredH)
	assert.Equal(t, 640, *w)
	assert.Equal(t, 480, *h)

	w, h = DefaultMediaDimensions(models.TypeDocument, nil, nil)
	assert.Nil(t, w)
	assert.Nil(t, h)
}
