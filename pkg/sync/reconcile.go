package sync

import (
	"sort"

	"github.com/sidkik/deploy-v1/pkg/store"
)

// RemoteSnapshot is a collection of all deployed objects, keyed by their
// prefix-relative key.
type RemoteSnapshot map[string]store.Object

// NewRemoteSnapshot indexes a remote listing by key.
func NewRemoteSnapshot(objects []store.Object) RemoteSnapshot {
	snapshot := RemoteSnapshot{}
	for _, obj := range objects {
		snapshot[obj.Key] = obj
	}
	return snapshot
}

// RetentionSet is the set of remote keys that must survive cleanup because a
// reachable build manifest still references them.
type RetentionSet map[string]struct{}

// Add inserts the key into the set.
func (set RetentionSet) Add(key string) {
	set[key] = struct{}{}
}

// Contains returns whether the key is in the set.
func (set RetentionSet) Contains(key string) bool {
	_, ok := set[key]
	return ok
}

// A Result partitions the union of the local and remote key spaces. Keys that
// are identical on both sides appear in none of the three sets.
type Result struct {
	// ToUpload contains local files that are absent remotely or whose remote
	// fingerprint doesn't match.
	ToUpload []LocalFile

	// ToDelete contains remote keys that are absent locally and not
	// protected by retention.
	ToDelete []string

	// ToRetain contains remote keys that are absent locally but referenced
	// by a retained manifest.
	ToRetain []string
}

// Options tune the reconciliation.
type Options struct {
	// Force uploads every local file regardless of the remote state.
	Force bool
}

// Diff computes the remote mutations needed to make the deployment match the
// local build. It's a pure function of its inputs; the same snapshots always
// produce the same result.
func Diff(local LocalSnapshot, remote RemoteSnapshot, retain RetentionSet,
	opts Options) Result {

	var result Result
	for key, f := range local {
		obj, remoteExists := remote[key]
		switch {
		case opts.Force || !remoteExists:
			result.ToUpload = append(result.ToUpload, f)
		case !fingerprintsEqual(f, obj):
			result.ToUpload = append(result.ToUpload, f)
		case manifestKeyPattern.MatchString(key):
			// Unchanged manifests are re-uploaded anyway so their
			// modification time tracks the most recent deploy. Retention
			// orders manifests by age.
			result.ToUpload = append(result.ToUpload, f)
		}
	}

	for key := range remote {
		if _, ok := local[key]; ok {
			continue
		}
		if retain.Contains(key) {
			result.ToRetain = append(result.ToRetain, key)
		} else {
			result.ToDelete = append(result.ToDelete, key)
		}
	}

	// Map iteration order is random, so sort for deterministic output.
	sort.Slice(result.ToUpload, func(i, j int) bool {
		return result.ToUpload[i].RelativeKey < result.ToUpload[j].RelativeKey
	})
	sort.Strings(result.ToDelete)
	sort.Strings(result.ToRetain)
	return result
}
