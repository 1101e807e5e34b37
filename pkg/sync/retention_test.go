package sync

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/deploy-v1/pkg/errors"
	"github.com/sidkik/deploy-v1/pkg/store"
)

// fakeGetter serves manifest bodies from a map.
type fakeGetter struct {
	objects map[string][]byte
}

func (g fakeGetter) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := g.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return body, nil
}

func manifestObject(key string, age time.Duration) store.Object {
	return store.Object{
		Key:          key,
		LastModified: time.Unix(1000000, 0).Add(-age),
	}
}

func retained(set RetentionSet) []string {
	var keys []string
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func TestResolveRetention(t *testing.T) {
	remote := []store.Object{
		{Key: "index.html"},
		{Key: "main.x9z8.js"},
		manifestObject("precache-manifest.old1.json", time.Hour),
	}
	getter := fakeGetter{objects: map[string][]byte{
		"precache-manifest.old1.json": []byte(
			`[{"url": "/main.x9z8.js", "revision": "x9z8"}]`),
	}}

	set := ResolveRetention(context.Background(), getter, remote, 2)
	assert.Equal(t, []string{
		"main.x9z8.js",
		"precache-manifest.old1.json",
	}, retained(set))
}

func TestResolveRetentionKeepsNewestN(t *testing.T) {
	remote := []store.Object{
		manifestObject("precache-manifest.new.json", time.Hour),
		manifestObject("precache-manifest.mid.json", 2*time.Hour),
		manifestObject("precache-manifest.old.json", 3*time.Hour),
	}
	getter := fakeGetter{objects: map[string][]byte{
		"precache-manifest.new.json": []byte(`[{"url": "/main.aaaa.js"}]`),
		"precache-manifest.mid.json": []byte(`[{"url": "/main.bbbb.js"}]`),
		"precache-manifest.old.json": []byte(`[{"url": "/main.cccc.js"}]`),
	}}

	set := ResolveRetention(context.Background(), getter, remote, 2)

	// Only the two most recent manifests and their assets are retained. The
	// oldest build has aged out.
	assert.Equal(t, []string{
		"main.aaaa.js",
		"main.bbbb.js",
		"precache-manifest.mid.json",
		"precache-manifest.new.json",
	}, retained(set))
}

func TestResolveRetentionDisabled(t *testing.T) {
	remote := []store.Object{
		manifestObject("precache-manifest.old1.json", time.Hour),
	}

	set := ResolveRetention(context.Background(), fakeGetter{}, remote, 0)
	assert.Empty(t, set)
}

// TestResolveRetentionUnreadableManifest asserts that a manifest that fails
// to fetch or parse shrinks the retention set rather than aborting the run.
func TestResolveRetentionUnreadableManifest(t *testing.T) {
	remote := []store.Object{
		manifestObject("precache-manifest.good.json", time.Hour),
		manifestObject("precache-manifest.missing.json", 2*time.Hour),
		manifestObject("precache-manifest.corrupt.json", 3*time.Hour),
	}
	getter := fakeGetter{objects: map[string][]byte{
		"precache-manifest.good.json":    []byte(`[{"url": "/main.aaaa.js"}]`),
		"precache-manifest.corrupt.json": []byte(`{{{not json`),
	}}

	set := ResolveRetention(context.Background(), getter, remote, 3)

	// The unreadable manifests contribute nothing, not even their own keys.
	assert.Equal(t, []string{
		"main.aaaa.js",
		"precache-manifest.good.json",
	}, retained(set))
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		expKeys []string
		expErr  bool
	}{
		{
			name: "PrecacheEntries",
			input: `[
				{"url": "/static/js/main.a1b2.js", "revision": "a1b2"},
				{"url": "/index.html", "revision": "9f8e", "integrity": "sha256-xyz"}
			]`,
			expKeys: []string{"static/js/main.a1b2.js", "index.html"},
		},
		{
			name: "LogicalNameMap",
			input: `{
				"main.js": "/static/js/main.a1b2.js",
				"main.css": "static/css/main.c3d4.css",
				"metadata": {"buildTime": "2019-06-01"}
			}`,
			expKeys: []string{"static/css/main.c3d4.css", "static/js/main.a1b2.js"},
		},
		{
			name:    "EmptyEntries",
			input:   `[]`,
			expKeys: nil,
		},
		{
			name:   "Corrupt",
			input:  `not json at all`,
			expErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			keys, err := parseManifest([]byte(test.input))
			if test.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			sort.Strings(keys)
			var expKeys []string
			expKeys = append(expKeys, test.expKeys...)
			sort.Strings(expKeys)
			assert.Equal(t, expKeys, keys)
		})
	}
}
