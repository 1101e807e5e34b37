package config

import (
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/sidkik/deploy-v1/pkg/errors"
)

// Deploy is the user's deploy configuration. It defines the deployment
// targets the CLI is allowed to write to, along with the policies that govern
// retention, caching, and retries.
type Deploy struct {
	Version string `json:"version,omitempty"`

	// Products and Deployments whitelist the valid deployment targets.
	Products    []string `json:"products"`
	Deployments []string `json:"deployments"`

	// Bucket is the S3 bucket shared by all deployment targets.
	Bucket string `json:"bucket"`
	Region string `json:"region,omitempty"`

	// Distributions maps product, then deployment, to the CloudFront
	// distribution serving that target.
	Distributions map[string]map[string]string `json:"distributions,omitempty"`

	// KeepVersions is how many previous builds' manifests are kept reachable.
	// Hashed files referenced by a kept manifest survive cleanup, so browsers
	// that loaded an older index.html keep working until their next reload.
	KeepVersions int `json:"keepVersions,omitempty"`

	// Workers bounds how many uploads run concurrently.
	Workers int `json:"workers,omitempty"`

	// RetryAttempts and RetryBaseDelay tune the backoff for transient remote
	// failures.
	RetryAttempts  int    `json:"retryAttempts,omitempty"`
	RetryBaseDelay string `json:"retryBaseDelay,omitempty"`

	// CacheRules overrides the default cache policy. Rules are evaluated in
	// order, and the first pattern that matches a file decides its caching
	// directive.
	CacheRules []CacheRule `json:"cacheRules,omitempty"`

	// Only populated and consumed by the CLI. Never set by the user.
	path string
}

// CacheRule maps filenames matching a pattern to a Cache-Control directive.
type CacheRule struct {
	Pattern   string `json:"pattern"`
	Directive string `json:"directive"`
}

// A Target is one resolved (product, deployment) pair.
type Target struct {
	Product        string
	Deployment     string
	Bucket         string
	Prefix         string
	DistributionID string
}

// InitialDeployConfigVersion is the first version of the deploy config.
// Config files that do not specify a version will default to this version.
const InitialDeployConfigVersion = "v1alpha1"

// SupportedDeployConfigVersion is the supported version of the deploy config
// for the current binary.
const SupportedDeployConfigVersion = "v1alpha1"

// DefaultDeployConfigPath is where ParseDeploy looks when the user doesn't
// specify a config path.
const DefaultDeployConfigPath = "deploy.yaml"

const (
	defaultKeepVersions   = 2
	defaultWorkers        = 8
	defaultRetryAttempts  = 4
	defaultRetryBaseDelay = 500 * time.Millisecond
)

// GetPath returns the filepath that the config was parsed from. A getter
// method is used rather than making the field public so that it can't get set
// by the yaml unmarshalling.
func (c Deploy) GetPath() string {
	return c.path
}

func (c Deploy) getVersion() string {
	return c.Version
}

// ParseDeploy parses the deploy configuration at the given path.
func ParseDeploy(path string) (Deploy, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Deploy{}, errors.WithContext(err, "expand homedir")
	}

	config := Deploy{
		path:          expanded,
		Version:       InitialDeployConfigVersion,
		KeepVersions:  defaultKeepVersions,
		Workers:       defaultWorkers,
		RetryAttempts: defaultRetryAttempts,
	}
	if err := parseConfig(expanded, &config, SupportedDeployConfigVersion); err != nil {
		return Deploy{}, errors.WithContext(err, "parse")
	}

	if config.Bucket == "" {
		return Deploy{}, errors.MissingFieldError{Field: "bucket"}
	}
	if len(config.Products) == 0 {
		return Deploy{}, errors.MissingFieldError{Field: "products"}
	}
	if len(config.Deployments) == 0 {
		return Deploy{}, errors.MissingFieldError{Field: "deployments"}
	}
	return config, nil
}

// RetryDelay returns the parsed backoff base delay.
func (c Deploy) RetryDelay() (time.Duration, error) {
	if c.RetryBaseDelay == "" {
		return defaultRetryBaseDelay, nil
	}

	delay, err := time.ParseDuration(c.RetryBaseDelay)
	if err != nil {
		return 0, errors.NewFriendlyError(
			"The retryBaseDelay %q in %q is not a valid duration.\n"+
				"Use a value like \"500ms\" or \"2s\".", c.RetryBaseDelay, c.path)
	}
	return delay, nil
}

// Target resolves and validates the given (product, deployment) pair against
// the whitelists in the config.
func (c Deploy) Target(product, deployment string) (Target, error) {
	if !contains(c.Products, product) {
		return Target{}, errors.NewFriendlyError(
			"Invalid product: %s.\nValid products are: %s.",
			product, strings.Join(c.Products, ", "))
	}

	if !contains(c.Deployments, deployment) {
		return Target{}, errors.NewFriendlyError(
			"Invalid deployment: %s.\nValid deployments are: %s.",
			deployment, strings.Join(c.Deployments, ", "))
	}

	distributionID := c.Distributions[product][deployment]
	if distributionID == "" {
		return Target{}, errors.NewFriendlyError(
			"No CloudFront distribution is configured for %s/%s.\n"+
				"Add it under `distributions` in %q.", product, deployment, c.path)
	}

	return Target{
		Product:        product,
		Deployment:     deployment,
		Bucket:         c.Bucket,
		Prefix:         fmt.Sprintf("deployments/%s/%s", product, deployment),
		DistributionID: distributionID,
	}, nil
}

func contains(haystack []string, needle string) bool {
	for _, straw := range haystack {
		if straw == needle {
			return true
		}
	}
	return false
}
