package cdn

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudfront"
	"github.com/aws/aws-sdk-go/service/cloudfront/cloudfrontiface"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/deploy-v1/pkg/errors"
	"github.com/sidkik/deploy-v1/pkg/retry"
)

// An Invalidator asks the delivery layer to discard cached copies of the
// given keys so that clients fetch the freshly deployed content. Keys are
// relative to the deployment prefix.
type Invalidator interface {
	Invalidate(ctx context.Context, keys []string) error
}

// maxInvalidationPaths bounds how many individual paths we invalidate before
// collapsing the request into a single wildcard for the whole deployment.
// CloudFront bills per invalidated path, and the wildcard counts as one.
const maxInvalidationPaths = 15

// CloudFront invalidates a CloudFront distribution.
type CloudFront struct {
	client         cloudfrontiface.CloudFrontAPI
	distributionID string
	prefix         string
	retrier        retry.Retrier
	clock          clockwork.Clock
}

// NewCloudFront creates an Invalidator for the given distribution. Paths are
// scoped to the deployment prefix.
func NewCloudFront(client cloudfrontiface.CloudFrontAPI, distributionID,
	prefix string, retrier retry.Retrier) *CloudFront {

	return &CloudFront{
		client:         client,
		distributionID: distributionID,
		prefix:         prefix,
		retrier:        retrier,
		clock:          clockwork.NewRealClock(),
	}
}

// Invalidate requests an invalidation for the given keys. Large change sets
// collapse into a wildcard over the deployment prefix.
func (cf *CloudFront) Invalidate(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	paths := make([]string, 0, len(keys))
	if len(keys) > maxInvalidationPaths {
		paths = append(paths, "/"+cf.prefix+"/*")
	} else {
		for _, key := range keys {
			paths = append(paths, "/"+cf.prefix+"/"+key)
		}
	}

	log.WithFields(log.Fields{
		"distribution": cf.distributionID,
		"paths":        len(paths),
	}).Info("Requesting CloudFront invalidation")

	input := &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(cf.distributionID),
		InvalidationBatch: &cloudfront.InvalidationBatch{
			CallerReference: aws.String(
				fmt.Sprintf("deploy-%d", cf.clock.Now().UnixNano())),
			Paths: &cloudfront.Paths{
				Quantity: aws.Int64(int64(len(paths))),
				Items:    aws.StringSlice(paths),
			},
		},
	}

	err := cf.retrier.Do(ctx, func() error {
		_, err := cf.client.CreateInvalidationWithContext(ctx, input)
		return err
	})
	if err != nil {
		return errors.InvalidationError{
			Distribution: cf.distributionID, Cause: err}
	}
	return nil
}
