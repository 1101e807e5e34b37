package sync

import (
	"regexp"

	"github.com/sidkik/deploy-v1/pkg/errors"
)

// Caching directives assigned to uploaded files.
const (
	// CacheForever is for content-hashed files. Their names change whenever
	// their contents change, so clients and the CDN may cache them for the
	// full window (90 days).
	CacheForever = "max-age=7776000, public"

	// CacheNever is for entry documents. They're the pointer to the current
	// hashed assets and must be revalidated on every request.
	CacheNever = "max-age=0, no-cache, must-revalidate, proxy-revalidate, no-store"

	// CacheDefault is for everything else.
	CacheDefault = "max-age=300, public"
)

// A Rule assigns a caching directive to filenames matching a pattern.
type Rule struct {
	Pattern   string
	Directive string

	regex *regexp.Regexp
}

// DefaultRules is the policy for create-react-app style builds: entry
// documents and manifests are never cached, content-hashed bundles are cached
// forever, and everything else gets a short window. Rules are matched in
// order.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `(^|/)(index\.html|asset-manifest\.json)$`, Directive: CacheNever},
		{Pattern: `(^|/)precache-manifest\.[^/]+\.json$`, Directive: CacheNever},
		{Pattern: `(^|/)service-worker\.js$`, Directive: CacheNever},
		{Pattern: `\.[0-9a-f]{4,32}(\.chunk)?(\.[^./]+)+$`, Directive: CacheForever},
	}
}

// A Policy maps each uploaded file to its caching directive by evaluating an
// ordered rule list; the first matching pattern wins, and files that match no
// rule get the default directive. Keeping the rules as data means a
// deployment can override them in its config without code changes.
type Policy struct {
	rules []Rule
}

// NewPolicy compiles the rule list. An invalid pattern is a PolicyError; it
// aborts the run before any mutation, since a deploy with a broken policy
// could poison caches for the full 90-day window.
func NewPolicy(rules []Rule) (Policy, error) {
	compiled := make([]Rule, len(rules))
	for i, rule := range rules {
		regex, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return Policy{}, errors.PolicyError{Rule: rule.Pattern, Cause: err}
		}
		if rule.Directive == "" {
			return Policy{}, errors.PolicyError{
				Rule: rule.Pattern, Cause: errors.New("empty directive")}
		}

		rule.regex = regex
		compiled[i] = rule
	}
	return Policy{rules: compiled}, nil
}

// Directive returns the caching directive for the given key.
func (p Policy) Directive(key string) string {
	for _, rule := range p.rules {
		if rule.regex.MatchString(key) {
			return rule.Directive
		}
	}
	return CacheDefault
}
