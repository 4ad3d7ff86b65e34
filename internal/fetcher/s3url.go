package fetcher

import (
	"fmt"
	"net/url"
	"strings"
)

// s3Location identifies an object in S3 by bucket and key.
type s3Location struct {
	Bucket string
	Key    string
}

// parseS3URL recognizes the two supported S3 URL layouts:
//
//	virtual-hosted: https://<bucket>.s3.<region>.amazonaws.com/<key>
//	path-style:     https://s3.<region>.amazonaws.com/<bucket>/<key>
//
// The region segment is optional in both. Non-S3 URLs return ok=false and no
// error; S3-looking URLs that fit neither layout return a descriptive error.
func parseS3URL(raw string) (loc s3Location, ok bool, err error) {
	u, parseErr := url.Parse(raw)
	if parseErr != nil {
		return s3Location{}, false, fmt.Errorf("invalid url %q: %w", raw, parseErr)
	}

	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return s3Location{}, false, nil
	}

	key := strings.TrimPrefix(u.Path, "/")

	if strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-") {
		// Path-style: first path segment is the bucket.
		bucket, rest, found := strings.Cut(key, "/")
		if !found || bucket == "" || rest == "" {
			return s3Location{}, false, fmt.Errorf("path-style s3 url %q is missing bucket or key", raw)
		}
		return s3Location{Bucket: bucket, Key: rest}, true, nil
	}

	if idx := strings.Index(host, ".s3."); idx > 0 {
		// Virtual-hosted-style: bucket is the host prefix before ".s3.".
		bucket := host[:idx]
		if key == "" {
			return s3Location{}, false, fmt.Errorf("virtual-hosted s3 url %q is missing object key", raw)
		}
		return s3Location{Bucket: bucket, Key: key}, true, nil
	}

	return s3Location{}, false, fmt.Errorf("unsupported s3 url layout: %q", raw)
}
