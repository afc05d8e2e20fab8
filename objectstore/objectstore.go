// Package objectstore implements the one function the Executor needs
// from the out-of-scope object store (§1, §6): put(key, bytes,
// content_type) -> public_url. Grounded on
// livepeer-catalyst-api/clients/object_store_client.go's retry-around-
// upload shape (UploadRetryBackoff's exponential backoff), without that
// file's github.com/livepeer/go-tools/drivers dependency -- a
// transcription-and-billing service has no use for go-tools' multi-cloud
// driver abstraction (S3/GCS/IPFS/web3.storage) when a single presigned
// PUT endpoint is all the spec documents (§6: "a key/value blob store
// with put(...) -> public_url and presigned PUT URLs").
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
)

// Store PUTs artifacts to presigned URLs derived from baseURL+key and
// reports back the public URL the object is readable at.
type Store struct {
	baseURL    string
	publicURL  string
	httpClient *http.Client
}

func New(baseURL, publicURL string) *Store {
	return &Store{baseURL: baseURL, publicURL: publicURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// PutArtifact satisfies task.ArtifactStore, retried with the same
// exponential-backoff shape UploadRetryBackoff gives uploads in the
// teacher.
func (s *Store) PutArtifact(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	boCtx := backoff.WithContext(backoff.WithMaxRetries(bo, 5), ctx)

	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/"+key, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("objectstore: put %s returned status %d", key, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("objectstore: put %s returned status %d", key, resp.StatusCode))
		}
		return nil
	}, boCtx)
	if err != nil {
		return "", xerrors.New(xerrors.CodeInternalError, "failed to upload artifact", err)
	}

	return s.publicURL + "/" + key, nil
}
