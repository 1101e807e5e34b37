package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/deploy-v1/pkg/errors"
)

func TestDefaultPolicy(t *testing.T) {
	policy, err := NewPolicy(DefaultRules())
	require.NoError(t, err)

	tests := []struct {
		key string
		exp string
	}{
		// Content-hashed bundles change name whenever they change contents,
		// so they can be cached forever.
		{"static/js/main.a1b2.js", CacheForever},
		{"static/js/2.345f66a0.chunk.js", CacheForever},
		{"static/js/2.345f66a0.chunk.js.map", CacheForever},
		{"static/css/main.c3d4e5f6.css", CacheForever},
		{"static/media/logo.5d5d9eef.svg", CacheForever},

		// Entry documents are the pointer to the current build and must be
		// revalidated on every request.
		{"index.html", CacheNever},
		{"asset-manifest.json", CacheNever},
		{"precache-manifest.8d2bec91f6ed7e91d219.json", CacheNever},
		{"service-worker.js", CacheNever},

		// Everything else gets a short window.
		{"favicon.ico", CacheDefault},
		{"robots.txt", CacheDefault},
		{"static/media/background.jpg", CacheDefault},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			assert.Equal(t, test.exp, policy.Directive(test.key))
		})
	}
}

func TestPolicyFirstMatchWins(t *testing.T) {
	policy, err := NewPolicy([]Rule{
		{Pattern: `\.js$`, Directive: "first"},
		{Pattern: `main\.js$`, Directive: "second"},
	})
	require.NoError(t, err)

	assert.Equal(t, "first", policy.Directive("main.js"))
}

func TestPolicyInvalidRule(t *testing.T) {
	_, err := NewPolicy([]Rule{
		{Pattern: `(unclosed`, Directive: CacheNever},
	})
	require.Error(t, err)

	policyErr, ok := err.(errors.PolicyError)
	require.True(t, ok)
	assert.Equal(t, "(unclosed", policyErr.Rule)

	_, err = NewPolicy([]Rule{
		{Pattern: `\.js$`, Directive: ""},
	})
	require.Error(t, err)
}

func TestContentType(t *testing.T) {
	tests := []struct {
		key string
		exp string
	}{
		{"static/js/main.a1b2.js.map", "application/octet-stream"},
		{"download.bin", "application/octet-stream"},
	}

	for _, test := range tests {
		assert.Equal(t, test.exp, ContentType(test.key), test.key)
	}

	// The platform mime database varies in the exact parameters it appends,
	// so only check the type prefix.
	assert.Contains(t, ContentType("index.html"), "text/html")
	assert.Contains(t, ContentType("static/css/main.c3d4.css"), "text/css")
}
