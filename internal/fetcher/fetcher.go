// Package fetcher retrieves remote resources into uniquely named local
// staging files and owns their best-effort release.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/id-verify/internal/logging"
)

// Handle points at a fetched resource staged on the local filesystem.
type Handle struct {
	URL  string
	Path string
}

// Bytes reads the staged file contents.
func (h *Handle) Bytes() ([]byte, error) {
	return os.ReadFile(h.Path)
}

// S3API is the subset of the S3 client used for object retrieval.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher downloads resources over HTTP or from S3, selected per URL shape.
// Exactly one transport handles any given URL.
type Fetcher struct {
	s3Client   S3API
	httpClient *http.Client
	stageDir   string
	timeout    time.Duration
	logger     *zap.Logger
}

// New constructs a Fetcher staging files under the system temp directory.
func New(s3Client S3API, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Fetcher{
		s3Client:   s3Client,
		httpClient: httpClient,
		stageDir:   os.TempDir(),
		timeout:    timeout,
		logger:     logger.Named("fetcher"),
	}
}

// Fetch downloads a single resource into a unique staging file.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	loc, isS3, err := parseS3URL(rawURL)
	if err != nil {
		return nil, logging.NewOperationError("fetcher.parse_url", "", err)
	}

	var body []byte
	if isS3 {
		body, err = f.getS3Object(ctx, loc)
	} else {
		body, err = f.getHTTP(ctx, rawURL)
	}
	if err != nil {
		return nil, logging.NewOperationError("fetcher.download", "", err)
	}

	name := "idverify-" + uuid.NewString() + stagingExt(rawURL)
	stagePath := filepath.Join(f.stageDir, name)
	if err := os.WriteFile(stagePath, body, 0o600); err != nil {
		return nil, logging.NewOperationError("fetcher.stage_file", "", err)
	}

	return &Handle{URL: rawURL, Path: stagePath}, nil
}

// FetchMany downloads all URLs concurrently. Individual failures are logged
// and dropped; the returned handles preserve the input order of successes.
func (f *Fetcher) FetchMany(ctx context.Context, urls []string) []*Handle {
	staged := make([]*Handle, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			handle, err := f.Fetch(ctx, u)
			if err != nil {
				f.logger.Warn("dropping unfetchable document", zap.String("url", u), zap.Error(err))
				return
			}
			staged[i] = handle
		}(i, u)
	}
	wg.Wait()

	handles := make([]*Handle, 0, len(urls))
	for _, h := range staged {
		if h != nil {
			handles = append(handles, h)
		}
	}
	return handles
}

// Release deletes a staged file. Failures are logged, never returned, so
// cleanup cannot mask the primary outcome of a request.
func (f *Fetcher) Release(handle *Handle) {
	if handle == nil {
		return
	}
	if err := os.Remove(handle.Path); err != nil {
		f.logger.Warn("failed to release staged file",
			zap.String("path", handle.Path), zap.Error(err))
	}
}

// ReleaseMany deletes all staged files, best effort.
func (f *Fetcher) ReleaseMany(handles []*Handle) {
	for _, h := range handles {
		f.Release(h)
	}
}

func (f *Fetcher) getS3Object(ctx context.Context, loc s3Location) ([]byte, error) {
	out, err := f.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s/%s failed: %w", loc.Bucket, loc.Key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (f *Fetcher) getHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}

// stagingExt preserves the URL's file extension so staged files keep a
// recognizable type; unknown or absent extensions default to none.
func stagingExt(rawURL string) string {
	ext := path.Ext(rawURL)
	if len(ext) > 5 {
		return ""
	}
	return ext
}
