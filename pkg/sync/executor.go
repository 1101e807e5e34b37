package sync

import (
	"context"
	"mime"
	"path"
	goSync "sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/deploy-v1/pkg/errors"
	"github.com/sidkik/deploy-v1/pkg/store"
)

const defaultWorkers = 8

// Content types the platform mime database doesn't cover. Source maps are
// served as opaque bytes.
var extraContentTypes = map[string]string{
	".map": "application/octet-stream",
}

// ContentType derives the content type for a key from its extension.
func ContentType(key string) string {
	ext := path.Ext(key)
	if contentType, ok := extraContentTypes[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

// An Executor performs the uploads and deletions produced by Diff against the
// remote store.
type Executor struct {
	Store   store.Store
	Policy  Policy
	Workers int

	// DryRun logs the mutations that would be performed without making any
	// remote call.
	DryRun bool
}

// Run uploads everything in result.ToUpload, then deletes result.ToDelete.
// Uploads are independent and run concurrently; deletions only start once
// every upload has succeeded. If any upload fails, deletions are skipped
// entirely so that a half-synced deploy never removes files the previous
// build still serves.
//
// Per-object failures are collected rather than aborting the run; the
// returned slice is empty on full success.
func (e Executor) Run(ctx context.Context, result Result) []error {
	failures := e.uploadAll(ctx, result.ToUpload)
	if len(failures) > 0 {
		log.Warnf("Skipping %d deletions because %d of %d uploads failed.",
			len(result.ToDelete), len(failures), len(result.ToUpload))
		return failures
	}

	return append(failures, e.deleteAll(ctx, result.ToDelete)...)
}

type mutationResult struct {
	key string
	err error
}

func (e Executor) uploadAll(ctx context.Context, files []LocalFile) []error {
	toUploadChan := make(chan LocalFile, len(files))
	for _, f := range files {
		toUploadChan <- f
	}
	close(toUploadChan)

	results := e.startWorkers(len(files), func(results chan<- mutationResult) {
		for f := range toUploadChan {
			results <- mutationResult{f.RelativeKey, e.upload(ctx, f)}
		}
	})

	var failures []error
	for res := range results {
		if res.err != nil {
			log.WithError(res.err).WithField("key", res.key).Error("Upload failed")
			failures = append(failures, errors.MutationError{
				Op: "upload", Key: res.key, Cause: res.err})
		}
	}
	return failures
}

func (e Executor) deleteAll(ctx context.Context, keys []string) []error {
	toDeleteChan := make(chan string, len(keys))
	for _, key := range keys {
		toDeleteChan <- key
	}
	close(toDeleteChan)

	results := e.startWorkers(len(keys), func(results chan<- mutationResult) {
		for key := range toDeleteChan {
			results <- mutationResult{key, e.delete(ctx, key)}
		}
	})

	var failures []error
	for res := range results {
		if res.err != nil {
			log.WithError(res.err).WithField("key", res.key).Error("Delete failed")
			failures = append(failures, errors.MutationError{
				Op: "delete", Key: res.key, Cause: res.err})
		}
	}
	return failures
}

// startWorkers runs `work` on a bounded pool and closes the returned channel
// once every worker has drained its input.
func (e Executor) startWorkers(jobs int, work func(chan<- mutationResult)) <-chan mutationResult {
	numWorkers := e.Workers
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if jobs < numWorkers {
		numWorkers = jobs
	}

	results := make(chan mutationResult, jobs)
	var waitGroup goSync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			work(results)
		}()
	}

	go func() {
		waitGroup.Wait()
		close(results)
	}()
	return results
}

func (e Executor) upload(ctx context.Context, f LocalFile) error {
	directive := e.Policy.Directive(f.RelativeKey)
	log.WithFields(log.Fields{
		"key":          f.RelativeKey,
		"cacheControl": directive,
	}).Info("Uploading")

	if e.DryRun {
		return nil
	}

	body, err := fs.Open(f.Path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer body.Close()

	return e.Store.Put(ctx, store.PutRequest{
		Key:          f.RelativeKey,
		Body:         body,
		ContentType:  ContentType(f.RelativeKey),
		CacheControl: directive,
	})
}

func (e Executor) delete(ctx context.Context, key string) error {
	log.WithField("key", key).Info("Removing")
	if e.DryRun {
		return nil
	}
	return e.Store.Delete(ctx, key)
}
