package sync

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudfront"
	"github.com/aws/aws-sdk-go/service/s3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/deploy-v1/cmd/util"
	"github.com/sidkik/deploy-v1/pkg/cdn"
	"github.com/sidkik/deploy-v1/pkg/config"
	"github.com/sidkik/deploy-v1/pkg/errors"
	"github.com/sidkik/deploy-v1/pkg/retry"
	"github.com/sidkik/deploy-v1/pkg/store"
	"github.com/sidkik/deploy-v1/pkg/sync"
)

// Environment variables that override the default AWS credential chain.
const (
	accessIDEnvKey  = "AWS_S3_DEPLOY_ACCESS_ID"
	secretKeyEnvKey = "AWS_S3_DEPLOY_SECRET_KEY"
)

// requiredFiles must be present in the build directory before anything is
// transferred. Their absence means the directory isn't a production build.
var requiredFiles = []string{"index.html", "asset-manifest.json"}

type options struct {
	product    string
	deployment string
	buildDir   string
	configPath string

	dryRun           bool
	force            bool
	invalidationOnly bool
	keepVersions     int
}

// New creates a new `sync` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "sync PRODUCT DEPLOYMENT BUILD_DIR",
		Short: "Deploy a built site to S3 and invalidate its CloudFront distribution.",
		Long: "Deploy the static build in BUILD_DIR to the S3 prefix for\n" +
			"PRODUCT/DEPLOYMENT, then invalidate the CloudFront distribution\n" +
			"serving it.\n\n" +
			"Only changed files are transferred. Hashed files referenced by\n" +
			"recent builds' manifests are kept on S3 so that browsers with an\n" +
			"older page loaded keep working until their next reload.",
		Args: cobra.ExactArgs(3),
		Run: func(_ *cobra.Command, args []string) {
			opts.product, opts.deployment, opts.buildDir = args[0], args[1], args[2]
			if err := Main(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultDeployConfigPath,
		"Path to the deploy configuration file.")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "d", false,
		"Log the planned transfers and removals without touching S3.")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false,
		"Transfer all build files, ignoring the existing files on S3.")
	cmd.Flags().BoolVarP(&opts.invalidationOnly, "invalidation-only", "i", false,
		"Create a CloudFront invalidation for the deployment without syncing.")
	cmd.Flags().IntVarP(&opts.keepVersions, "keep-versions", "m", -1,
		"Number of previous builds whose assets are kept. Overrides the config.")
	return cmd
}

// Main loads the deploy configuration and runs the sync against the real AWS
// clients.
func Main(opts options) error {
	cfg, err := config.ParseDeploy(opts.configPath)
	if err != nil {
		return errors.WithContext(err, "parse deploy config")
	}

	target, err := cfg.Target(opts.product, opts.deployment)
	if err != nil {
		return err
	}

	baseDelay, err := cfg.RetryDelay()
	if err != nil {
		return err
	}

	rules := sync.DefaultRules()
	if len(cfg.CacheRules) != 0 {
		rules = nil
		for _, rule := range cfg.CacheRules {
			rules = append(rules, sync.Rule{
				Pattern: rule.Pattern, Directive: rule.Directive})
		}
	}
	policy, err := sync.NewPolicy(rules)
	if err != nil {
		return err
	}

	awsSession, err := newSession(cfg.Region)
	if err != nil {
		return errors.WithContext(err, "create AWS session")
	}

	if opts.keepVersions < 0 {
		opts.keepVersions = cfg.KeepVersions
	}

	// Concurrent deploys to the same target can interleave unsafely, so
	// callers are expected to serialize them. An interrupted run is safe:
	// deletions never start until every upload has finished.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received interrupt. Aborting...")
		cancel()
	}()

	retrier := retry.New(cfg.RetryAttempts, baseDelay)
	return run(ctx, runOptions{
		options: opts,
		store: store.NewS3(s3.New(awsSession), target.Bucket,
			target.Prefix, retrier),
		invalidator: cdn.NewCloudFront(cloudfront.New(awsSession),
			target.DistributionID, target.Prefix, retrier),
		policy:  policy,
		workers: cfg.Workers,
	})
}

// newSession creates an AWS session, preferring the deploy-specific
// credential environment variables over the SDK's default chain.
func newSession(region string) (*session.Session, error) {
	awsConfig := aws.NewConfig()
	if region != "" {
		awsConfig = awsConfig.WithRegion(region)
	}

	accessID, secretKey := os.Getenv(accessIDEnvKey), os.Getenv(secretKeyEnvKey)
	if accessID != "" && secretKey != "" {
		awsConfig = awsConfig.WithCredentials(
			credentials.NewStaticCredentials(accessID, secretKey, ""))
	}
	return session.NewSession(awsConfig)
}

type runOptions struct {
	options
	store       store.Store
	invalidator cdn.Invalidator
	policy      sync.Policy
	workers     int
}

func run(ctx context.Context, opts runOptions) error {
	if opts.invalidationOnly {
		log.Info("Requesting invalidation for the full deployment")
		return opts.invalidator.Invalidate(ctx, []string{"*"})
	}

	local, err := sync.Snapshot(opts.buildDir)
	if err != nil {
		return err
	}

	for _, required := range requiredFiles {
		if _, ok := local[required]; !ok {
			return errors.NewFriendlyError(
				"The build directory %q is missing %q.\n"+
					"Are you pointing at a production build?",
				opts.buildDir, required)
		}
	}

	remote, err := opts.store.List(ctx)
	if err != nil {
		return err
	}

	retain := sync.ResolveRetention(ctx, opts.store, remote, opts.keepVersions)
	result := sync.Diff(local, sync.NewRemoteSnapshot(remote), retain,
		sync.Options{Force: opts.force})

	log.WithFields(log.Fields{
		"upload": len(result.ToUpload),
		"delete": len(result.ToDelete),
		"retain": len(result.ToRetain),
	}).Info("Reconciled build against deployment")

	executor := sync.Executor{
		Store:   opts.store,
		Policy:  opts.policy,
		Workers: opts.workers,
		DryRun:  opts.dryRun,
	}
	if failures := executor.Run(ctx, result); len(failures) > 0 {
		return errors.NewFriendlyError(
			"%d of %d mutations failed. The deployment may be partially "+
				"synced; fix the errors above and re-run the deploy.",
			len(failures), len(result.ToUpload)+len(result.ToDelete))
	}

	if opts.dryRun {
		return nil
	}

	var changed []string
	for _, f := range result.ToUpload {
		changed = append(changed, f.RelativeKey)
	}
	changed = append(changed, result.ToDelete...)

	if err := opts.invalidator.Invalidate(ctx, changed); err != nil {
		// The deployed files are already correct. Only edge caches are
		// stale, and they expire on their own.
		log.WithError(err).Warn("Failed to invalidate the CDN cache")
	}
	return nil
}
