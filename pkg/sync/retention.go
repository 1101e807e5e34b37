package sync

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/deploy-v1/pkg/errors"
	"github.com/sidkik/deploy-v1/pkg/store"
)

// manifestKeyPattern identifies published build manifests among the deployed
// objects. Each build publishes one, named after a hash of its contents.
var manifestKeyPattern = regexp.MustCompile(`(^|/)precache-manifest\.[^/]+\.json$`)

// A Getter fetches the contents of one deployed object.
type Getter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ResolveRetention computes the set of deployed keys that must survive
// cleanup. It selects the `keep` most recently written build manifests from
// the remote listing, fetches each one, and unions every asset they reference
// (plus the manifests themselves) into the retention set.
//
// A manifest that can't be fetched or parsed is skipped with a warning rather
// than failing the deploy. Its assets lose retention protection, so any
// browser still on that build may break, but a corrupt old manifest shouldn't
// block shipping a new build.
func ResolveRetention(ctx context.Context, getter Getter,
	remote []store.Object, keep int) RetentionSet {

	set := RetentionSet{}
	if keep <= 0 {
		return set
	}

	var manifests []store.Object
	for _, obj := range remote {
		if manifestKeyPattern.MatchString(obj.Key) {
			manifests = append(manifests, obj)
		}
	}

	// Newest first. Retention protects the builds users may still have open,
	// which are the most recently deployed ones.
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].LastModified.After(manifests[j].LastModified)
	})
	if len(manifests) > keep {
		manifests = manifests[:keep]
	}

	type manifestResult struct {
		key  string
		refs []string
		err  error
	}

	// The manifests are independent objects, so fetch them concurrently and
	// join before unioning the results.
	results := make(chan manifestResult, len(manifests))
	for _, manifest := range manifests {
		go func(manifest store.Object) {
			body, err := getter.Get(ctx, manifest.Key)
			if err != nil {
				results <- manifestResult{key: manifest.Key, err: err}
				return
			}

			refs, err := parseManifest(body)
			results <- manifestResult{key: manifest.Key, refs: refs, err: err}
		}(manifest)
	}

	for range manifests {
		res := <-results
		if res.err != nil {
			log.WithError(errors.ManifestReadError{Key: res.key, Cause: res.err}).
				Warn("Skipping unreadable build manifest. Its assets won't " +
					"be retained, so browsers still on that build may break.")
			continue
		}

		set.Add(res.key)
		for _, ref := range res.refs {
			set.Add(ref)
		}
	}
	return set
}

// manifestEntry is one precached asset in the manifest format published by
// current builds.
type manifestEntry struct {
	URL      string `json:"url"`
	Revision string `json:"revision"`
}

// parseManifest extracts the deployed keys a build manifest references.
// Current builds publish a JSON array of precache entries; older builds
// published a flat mapping of logical asset name to hashed filename. Unknown
// fields and non-string values are ignored in both forms.
func parseManifest(body []byte) ([]string, error) {
	var entries []manifestEntry
	if err := json.Unmarshal(body, &entries); err == nil {
		var keys []string
		for _, entry := range entries {
			if entry.URL == "" {
				continue
			}
			keys = append(keys, strings.TrimPrefix(entry.URL, "/"))
		}
		return keys, nil
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(body, &byName); err != nil {
		return nil, errors.WithContext(err, "unmarshal")
	}

	var keys []string
	for _, raw := range byName {
		var hashedName string
		if err := json.Unmarshal(raw, &hashedName); err != nil {
			// Auxiliary non-string fields are tolerated.
			continue
		}
		keys = append(keys, strings.TrimPrefix(hashedName, "/"))
	}
	return keys, nil
}
