// Package face decides whether a reference photo matches a face on any of a
// set of identity document images, using Amazon Rekognition.
package face

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/example/id-verify/internal/fetcher"
)

// similarityThreshold is the fixed policy constant below which a detected
// face is not reported as a match.
const similarityThreshold = 80

// MatchResult is the outcome of a face comparison. Confidence is meaningful
// only when Matched is true; otherwise it is 0.
type MatchResult struct {
	Matched    bool
	Confidence float64
}

// Client is the subset of the Rekognition API used for detection and
// comparison.
type Client interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
	CompareFaces(ctx context.Context, params *rekognition.CompareFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error)
}

// Comparator runs face detection and comparison against fetched documents.
type Comparator struct {
	client  Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewComparator constructs a Comparator.
func NewComparator(client Client, timeout time.Duration, logger *zap.Logger) *Comparator {
	return &Comparator{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("face"),
	}
}

// CompareOne compares the reference photo against a single candidate image.
func (c *Comparator) CompareOne(ctx context.Context, source, target *fetcher.Handle) (MatchResult, error) {
	sourceBytes, err := source.Bytes()
	if err != nil {
		return MatchResult{}, err
	}
	targetBytes, err := target.Bytes()
	if err != nil {
		return MatchResult{}, err
	}
	return c.compareBytes(ctx, sourceBytes, targetBytes)
}

// CompareAgainstSet scans candidates in input order and returns the FIRST one
// whose face matches the reference photo; remaining candidates are not
// evaluated. A candidate with no detectable face, or one that errors during
// detection or comparison, counts as "no match for this candidate" and the
// scan continues. Exhausting the list yields a zero MatchResult.
func (c *Comparator) CompareAgainstSet(ctx context.Context, source *fetcher.Handle, candidates []*fetcher.Handle) MatchResult {
	sourceBytes, err := source.Bytes()
	if err != nil {
		c.logger.Error("unable to read reference photo", zap.String("url", source.URL), zap.Error(err))
		return MatchResult{}
	}

	for _, candidate := range candidates {
		candidateBytes, err := candidate.Bytes()
		if err != nil {
			c.logger.Warn("unable to read candidate image", zap.String("url", candidate.URL), zap.Error(err))
			continue
		}

		detected, err := c.hasFace(ctx, candidateBytes)
		if err != nil {
			c.logger.Warn("face detection failed, skipping candidate",
				zap.String("url", candidate.URL), zap.Error(err))
			continue
		}
		if !detected {
			c.logger.Debug("no face detected on candidate", zap.String("url", candidate.URL))
			continue
		}

		result, err := c.compareBytes(ctx, sourceBytes, candidateBytes)
		if err != nil {
			c.logger.Warn("face comparison failed, skipping candidate",
				zap.String("url", candidate.URL), zap.Error(err))
			continue
		}
		if result.Matched {
			return result
		}
	}

	return MatchResult{}
}

func (c *Comparator) hasFace(ctx context.Context, image []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.client.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		return false, err
	}
	return len(out.FaceDetails) > 0, nil
}

func (c *Comparator) compareBytes(ctx context.Context, source, target []byte) (MatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.client.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage:         &types.Image{Bytes: source},
		TargetImage:         &types.Image{Bytes: target},
		SimilarityThreshold: aws.Float32(similarityThreshold),
	})
	if err != nil {
		return MatchResult{}, err
	}
	if len(out.FaceMatches) == 0 {
		return MatchResult{}, nil
	}

	confidence := float64(aws.ToFloat32(out.FaceMatches[0].Similarity))
	return MatchResult{Matched: true, Confidence: confidence}, nil
}
