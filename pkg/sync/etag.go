package sync

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/deploy-v1/pkg/errors"
	"github.com/sidkik/deploy-v1/pkg/store"
)

// multipartETagPattern matches fingerprints produced by multipart uploads: an
// MD5 of the concatenated per-part digests, suffixed with the part count.
// Single-part fingerprints are a plain MD5 of the contents and carry no
// suffix.
var multipartETagPattern = regexp.MustCompile(`^[0-9a-f]{32}-([0-9]+)$`)

// fingerprintsEqual reports whether the local file and the remote object hold
// the same bytes. For multipart fingerprints the local equivalent is
// recomputed over the part boundaries implied by the part count. When the
// boundaries can't be reconstructed, the file is treated as changed:
// re-uploading an identical file costs bandwidth, while skipping a changed
// one serves stale content.
func fingerprintsEqual(local LocalFile, remote store.Object) bool {
	match := multipartETagPattern.FindStringSubmatch(remote.ETag)
	if match == nil {
		return local.ContentHash == remote.ETag
	}

	if local.Size != remote.Size {
		return false
	}

	parts, err := strconv.Atoi(match[1])
	if err != nil {
		return false
	}

	etag, err := multipartETag(local.Path, local.Size, parts)
	if err != nil {
		log.WithError(err).WithField("key", local.RelativeKey).Debug(
			"Couldn't reproduce multipart fingerprint. Treating the file as changed.")
		return false
	}
	return etag == remote.ETag
}

const mib = 1 << 20

// partSizeFor reconstructs the part size used for a multipart upload of
// `size` bytes in `parts` parts. Uploaders pick part sizes in whole MiBs, so
// the boundaries are recoverable from the part count alone; if no whole-MiB
// part size yields the observed count, the boundaries are unknown.
func partSizeFor(size int64, parts int) (int64, error) {
	if parts <= 0 || size <= 0 {
		return 0, errors.New("empty multipart upload")
	}

	partSize := (size + int64(parts) - 1) / int64(parts)
	partSize = (partSize + mib - 1) / mib * mib
	if (size+partSize-1)/partSize == int64(parts) {
		return partSize, nil
	}

	// Some uploaders fix the part size rather than the part count.
	for _, candidate := range []int64{5 * mib, 8 * mib, 16 * mib, 64 * mib} {
		if (size+candidate-1)/candidate == int64(parts) {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("no part size yields %d parts for %d bytes", parts, size)
}

// multipartETag computes the fingerprint the store would report for the file
// if it were uploaded in `parts` parts.
func multipartETag(path string, size int64, parts int) (string, error) {
	partSize, err := partSizeFor(size, parts)
	if err != nil {
		return "", err
	}

	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := md5.New()
	for i := 0; i < parts; i++ {
		partHasher := md5.New()
		if _, err := io.CopyN(partHasher, f, partSize); err != nil && err != io.EOF {
			return "", errors.WithContext(err, "read part")
		}
		hasher.Write(partHasher.Sum(nil))
	}

	return fmt.Sprintf("%s-%d", hex.EncodeToString(hasher.Sum(nil)), parts), nil
}
