package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/storage"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failOn  string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *memoryStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectStat, error) {
	if s.failOn != "" && strings.Contains(key, s.failOn) {
		return storage.ObjectStat{}, errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectStat{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return storage.ObjectStat{Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *memoryStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func uploadFile(name string, data []byte) UploadFile {
	return UploadFile{Name: name, Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

func TestUploadReportsEachFile(t *testing.T) {
	store := newMemoryStore()
	svc := NewAttachmentService(store, "https://api.example.com/api/", 1024*1024)

	exe := append([]byte("MZ"), make([]byte, 200)...)
	results, err := svc.Upload(context.Background(), 3, []UploadFile{
		uploadFile("mock.png", pngBytes(t, 640, 320)),
		uploadFile("notes.txt", []byte("meeting notes\n")),
		uploadFile("setup.exe", exe),
		uploadFile("empty.txt", nil),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}

	img := results[0]
	if !img.OK || img.Attachment == nil {
		t.Fatalf("png result = %+v", img)
	}
	if img.Attachment.MimeType != "image/png" || img.Attachment.ThumbnailURL == "" {
		t.Errorf("png attachment = %+v", img.Attachment)
	}
	if !strings.HasPrefix(img.Attachment.URL, "https://api.example.com/api/media/attachments/3/") {
		t.Errorf("url = %s", img.Attachment.URL)
	}

	if !results[1].OK || results[1].Attachment.MimeType != "text/plain" || results[1].Attachment.ThumbnailURL != "" {
		t.Errorf("text result = %+v", results[1])
	}
	if results[2].OK || results[2].Error == "" {
		t.Errorf("executable should be rejected: %+v", results[2])
	}
	if results[3].OK {
		t.Errorf("empty file should be rejected: %+v", results[3])
	}

	// png, its thumbnail, and the text file.
	if len(store.objects) != 3 {
		t.Errorf("stored objects = %d, want 3", len(store.objects))
	}
}

func TestUploadEnforcesLimits(t *testing.T) {
	svc := NewAttachmentService(newMemoryStore(), "https://api.example.com/api", 16)

	results, err := svc.Upload(context.Background(), 3, []UploadFile{uploadFile("big.txt", bytes.Repeat([]byte("a"), 17))})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if results[0].OK {
		t.Errorf("oversized file accepted")
	}

	many := make([]UploadFile, MaxFilesPerUpload+1)
	for i := range many {
		many[i] = uploadFile("a.txt", []byte("a"))
	}
	if _, err := svc.Upload(context.Background(), 3, many); !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("too many files err = %v, want validation", err)
	}
	if _, err := svc.Upload(context.Background(), 3, nil); !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("no files err = %v, want validation", err)
	}
}

func TestUploadStoreFailureIsPerFile(t *testing.T) {
	store := newMemoryStore()
	store.failOn = "/4/"
	svc := NewAttachmentService(store, "https://api.example.com/api", 0)

	results, err := svc.Upload(context.Background(), 4, []UploadFile{uploadFile("a.txt", []byte("hello"))})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if results[0].OK || results[0].Error != "store attachment" {
		t.Errorf("result = %+v", results[0])
	}
}

func TestUploadWithoutStorage(t *testing.T) {
	svc := NewAttachmentService(nil, "", 0)
	if _, err := svc.Upload(context.Background(), 1, []UploadFile{uploadFile("a.txt", []byte("a"))}); !apperr.Is(err, apperr.CodeUnavailable) {
		t.Errorf("err = %v, want unavailable", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\photo.jpg`, "photo.jpg"},
		{"  ", "file"},
	}
	for _, tt := range tests {
		if got := sanitizeFileName(tt.in); got != tt.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
