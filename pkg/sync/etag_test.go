package sync

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/deploy-v1/pkg/store"
)

// referenceMultipartETag computes a multipart fingerprint the way an uploader
// would: MD5 each part, then MD5 the concatenated digests.
func referenceMultipartETag(contents []byte, partSize int64) string {
	var digests []byte
	parts := 0
	for offset := int64(0); offset < int64(len(contents)); offset += partSize {
		end := offset + partSize
		if end > int64(len(contents)) {
			end = int64(len(contents))
		}
		sum := md5.Sum(contents[offset:end])
		digests = append(digests, sum[:]...)
		parts++
	}
	sum := md5.Sum(digests)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:]), parts)
}

func TestFingerprintsEqualSinglePart(t *testing.T) {
	local := localFile("main.a1b2.js", "bundle")

	assert.True(t, fingerprintsEqual(local, remoteObject("main.a1b2.js", "bundle")))
	assert.False(t, fingerprintsEqual(local, remoteObject("main.a1b2.js", "other")))
}

func TestFingerprintsEqualMultipart(t *testing.T) {
	fs = afero.NewMemMapFs()

	// 2.5 MiB uploaded in 1 MiB parts: a 3-part fingerprint that a plain MD5
	// comparison would misreport as changed.
	contents := bytes.Repeat([]byte{0xab}, 5*mib/2)
	require.NoError(t, afero.WriteFile(fs, "build/media/video.bin", contents, 0644))

	sum := md5.Sum(contents)
	local := LocalFile{
		RelativeKey: "media/video.bin",
		ContentHash: hex.EncodeToString(sum[:]),
		Size:        int64(len(contents)),
		Path:        "build/media/video.bin",
	}

	remote := store.Object{
		Key:  "media/video.bin",
		ETag: referenceMultipartETag(contents, mib),
		Size: int64(len(contents)),
	}
	assert.True(t, fingerprintsEqual(local, remote))

	// Same boundaries, different bytes.
	changed := bytes.Repeat([]byte{0xcd}, 5*mib/2)
	remote.ETag = referenceMultipartETag(changed, mib)
	assert.False(t, fingerprintsEqual(local, remote))
}

func TestFingerprintsEqualMultipartSizeMismatch(t *testing.T) {
	local := localFile("media/video.bin", "short")
	remote := store.Object{
		Key:  "media/video.bin",
		ETag: "d41d8cd98f00b204e9800998ecf8427e-3",
		Size: 3 * mib,
	}
	assert.False(t, fingerprintsEqual(local, remote))
}

func TestFingerprintsEqualUndecidable(t *testing.T) {
	fs = afero.NewMemMapFs()

	// A part count that no whole-MiB (or default) part size can produce for
	// this object size. The safe default is to treat the file as changed.
	contents := bytes.Repeat([]byte{0xab}, mib)
	require.NoError(t, afero.WriteFile(fs, "build/blob.bin", contents, 0644))

	sum := md5.Sum(contents)
	local := LocalFile{
		RelativeKey: "blob.bin",
		ContentHash: hex.EncodeToString(sum[:]),
		Size:        int64(len(contents)),
		Path:        "build/blob.bin",
	}
	remote := store.Object{
		Key:  "blob.bin",
		ETag: "d41d8cd98f00b204e9800998ecf8427e-7",
		Size: int64(len(contents)),
	}
	assert.False(t, fingerprintsEqual(local, remote))
}

func TestPartSizeFor(t *testing.T) {
	// 2.5 MiB in 3 parts: rounding ceil(size/parts) up to a whole MiB yields
	// 1 MiB parts.
	partSize, err := partSizeFor(5*mib/2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(mib), partSize)

	// 20 MiB in 4 parts: 5 MiB parts.
	partSize, err = partSizeFor(20*mib, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5*mib), partSize)

	_, err = partSizeFor(mib, 7)
	assert.Error(t, err)

	_, err = partSizeFor(0, 1)
	assert.Error(t, err)
}
