package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

type stubS3 struct {
	objects map[string][]byte
	lastKey string
	err     error
}

func (s *stubS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastKey = aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	body, found := s.objects[s.lastKey]
	if !found {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func newTestFetcher(t *testing.T, s3Client S3API) *Fetcher {
	t.Helper()
	f := New(s3Client, &http.Client{}, 2*time.Second, zap.NewNop())
	f.stageDir = t.TempDir()
	return f
}

func TestFetchStagesHTTPResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("photo bytes"))
	}))
	defer server.Close()

	f := newTestFetcher(t, &stubS3{})
	handle, err := f.Fetch(context.Background(), server.URL+"/photo.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := handle.Bytes()
	if err != nil {
		t.Fatalf("failed to read staged file: %v", err)
	}
	if string(body) != "photo bytes" {
		t.Fatalf("unexpected staged content: %q", body)
	}

	f.Release(handle)
	if _, err := os.Stat(handle.Path); !os.IsNotExist(err) {
		t.Fatalf("expected staged file to be removed, stat error: %v", err)
	}
}

func TestFetchRejectsNon200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(t, &stubS3{})
	if _, err := f.Fetch(context.Background(), server.URL+"/missing.jpg"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestFetchRoutesS3URLsToS3Client(t *testing.T) {
	s3Client := &stubS3{objects: map[string][]byte{
		"kyc-docs/uploads/aadhaar.jpg": []byte("document bytes"),
	}}
	f := newTestFetcher(t, s3Client)

	handle, err := f.Fetch(context.Background(), "https://kyc-docs.s3.ap-south-1.amazonaws.com/uploads/aadhaar.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Release(handle)

	if s3Client.lastKey != "kyc-docs/uploads/aadhaar.jpg" {
		t.Fatalf("unexpected bucket/key routed to s3: %q", s3Client.lastKey)
	}
	body, _ := handle.Bytes()
	if string(body) != "document bytes" {
		t.Fatalf("unexpected staged content: %q", body)
	}
}

func TestFetchManyDropsFailuresAndPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.jpg" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	f := newTestFetcher(t, &stubS3{})
	handles := f.FetchMany(context.Background(), []string{
		server.URL + "/front.jpg",
		server.URL + "/broken.jpg",
		server.URL + "/back.jpg",
	})
	defer f.ReleaseMany(handles)

	if len(handles) != 2 {
		t.Fatalf("expected 2 staged handles, got %d", len(handles))
	}
	first, _ := handles[0].Bytes()
	second, _ := handles[1].Bytes()
	if string(first) != "/front.jpg" || string(second) != "/back.jpg" {
		t.Fatalf("expected input order to be preserved, got %q then %q", first, second)
	}
}

func TestReleaseNilHandleIsNoop(t *testing.T) {
	f := newTestFetcher(t, &stubS3{})
	f.Release(nil)
	f.ReleaseMany([]*Handle{nil, nil})
}

func TestStagingExt(t *testing.T) {
	if got := stagingExt("https://cdn.example.com/photo.jpg"); got != ".jpg" {
		t.Fatalf("expected .jpg, got %q", got)
	}
	if got := stagingExt("https://cdn.example.com/photo"); got != "" {
		t.Fatalf("expected empty extension, got %q", got)
	}
	if got := stagingExt("https://cdn.example.com/archive.backup"); got != "" {
		t.Fatalf("expected overlong extension to be dropped, got %q", got)
	}
}
