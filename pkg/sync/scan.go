package sync

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/deploy-v1/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// A LocalFile is one regular file in the build directory.
type LocalFile struct {
	// RelativeKey is the path of the file relative to the build root, using
	// forward slashes regardless of the host path separator.
	RelativeKey string

	// ContentHash is the hex MD5 digest of the file contents. MD5 matches
	// the fingerprint the remote store reports for objects uploaded in a
	// single part, so unchanged files compare equal without a download.
	ContentHash string

	// Size is the file size in bytes.
	Size int64

	// Path is the path that can be opened to read the file contents.
	Path string
}

// LocalSnapshot is a collection of all build files, keyed by RelativeKey.
type LocalSnapshot map[string]LocalFile

// Snapshot walks the build directory and returns a LocalFile for every
// regular file under it. The snapshot depends only on file paths and
// contents, so scanning the same build twice yields identical results.
func Snapshot(root string) (LocalSnapshot, error) {
	info, err := fs.Stat(root)
	if err != nil {
		return nil, errors.ScanError{Path: root, Cause: err}
	}
	if !info.IsDir() {
		return nil, errors.ScanError{
			Path: root, Cause: errors.New("not a directory")}
	}

	files := LocalSnapshot{}
	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		relativePath, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "normalize path")
		}
		key := filepath.ToSlash(relativePath)

		contentHash, err := HashFile(path)
		if err != nil {
			return err
		}

		files[key] = LocalFile{
			RelativeKey: key,
			ContentHash: contentHash,
			Size:        fi.Size(),
			Path:        path,
		}
		return nil
	})
	if err != nil {
		return nil, errors.ScanError{Path: root, Cause: err}
	}
	return files, nil
}

// HashFile returns the hex MD5 digest of the file at the given path.
func HashFile(path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
