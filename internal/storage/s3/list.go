package s3

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"
	"time"

	"github.com/caskstore/caskstore/internal/sigv4"
	"github.com/caskstore/caskstore/pkg/errors"
	"github.com/caskstore/caskstore/pkg/types"
)

// listBucketResult is the ListObjectsV2 response body.
type listBucketResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken"`
	Contents              []listedEntry `xml:"Contents"`
}

type listedEntry struct {
	Key          string    `xml:"Key"`
	Size         int64     `xml:"Size"`
	ETag         string    `xml:"ETag"`
	LastModified time.Time `xml:"LastModified"`
}

// ListKeys returns a lazy iterator over all keys under keyPrefix. Pages are
// fetched on demand as the iterator advances; the continuation token is
// treated as opaque and echoed back verbatim.
func (s *Store) ListKeys(ctx context.Context, keyPrefix string) types.KeyIterator {
	return &keyIterator{
		store:  s,
		ctx:    ctx,
		prefix: s.listPrefix(keyPrefix),
	}
}

// ListObjects collects full object metadata under keyPrefix into memory.
// Prefer ListKeys for large listings.
func (s *Store) ListObjects(ctx context.Context, keyPrefix string) ([]types.ObjectInfo, error) {
	var objects []types.ObjectInfo
	token := ""
	for {
		page, err := s.listPage(ctx, s.listPrefix(keyPrefix), token)
		if err != nil {
			return nil, err
		}
		for _, entry := range page.Contents {
			key, ok := s.relativeKey(entry.Key)
			if !ok {
				continue
			}
			objects = append(objects, types.ObjectInfo{
				Key:          key,
				Size:         entry.Size,
				LastModified: entry.LastModified,
				ETag:         strings.Trim(entry.ETag, `"`),
			})
		}
		if !page.IsTruncated {
			return objects, nil
		}
		token = page.NextContinuationToken
	}
}

// keyIterator walks ListObjectsV2 pages lazily. It is not safe for
// concurrent use; each ListKeys call returns an independent iterator.
type keyIterator struct {
	store  *Store
	ctx    context.Context
	prefix string

	page    []listedEntry
	pos     int
	token   string
	current string
	started bool
	done    bool
	err     error
}

// Next advances to the next key, fetching the next page when the current one
// is exhausted. Keys outside the store's prefix subtree are skipped. It
// returns false after exhaustion, error, or Close.
func (it *keyIterator) Next() bool {
	if it.done {
		return false
	}

	for {
		for it.pos < len(it.page) {
			entry := it.page[it.pos]
			it.pos++
			key, ok := it.store.relativeKey(entry.Key)
			if !ok {
				continue
			}
			it.current = key
			return true
		}

		if it.started && it.token == "" {
			it.done = true
			return false
		}

		page, err := it.store.listPage(it.ctx, it.prefix, it.token)
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		it.started = true
		it.page = page.Contents
		it.pos = 0
		if page.IsTruncated {
			it.token = page.NextContinuationToken
		} else {
			it.token = ""
		}
	}
}

// Key returns the key positioned by the last successful Next.
func (it *keyIterator) Key() string {
	return it.current
}

// Err returns the error that terminated iteration, if any.
func (it *keyIterator) Err() error {
	return it.err
}

// Close stops iteration. Idempotent.
func (it *keyIterator) Close() error {
	it.done = true
	return nil
}

// listPage fetches one ListObjectsV2 page.
func (s *Store) listPage(ctx context.Context, prefix, token string) (*listBucketResult, error) {
	query := url.Values{}
	query.Set("list-type", "2")
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if token != "" {
		query.Set("continuation-token", token)
	}

	resp, err := s.do(ctx, storeRequest{
		operation:   "ListKeys",
		method:      "GET",
		query:       query,
		payloadHash: sigv4.EmptyPayloadHash,
		timeout:     s.cfg.ListTimeout,
	})
	if err != nil {
		return nil, err
	}

	var result listBucketResult
	if err := xml.Unmarshal(resp.body, &result); err != nil {
		return nil, errors.New(errors.ErrCodeParseFailed, "failed to decode listing response").
			WithOperation("ListKeys").WithCause(err)
	}
	return &result, nil
}

// listPrefix builds the physical listing prefix. An empty key prefix lists
// the whole store, which under a store prefix means its subtree only: the
// trailing slash keeps sibling prefixes like "<prefix>-other" out of the
// match.
func (s *Store) listPrefix(keyPrefix string) string {
	if s.cfg.Prefix == "" {
		return keyPrefix
	}
	if keyPrefix == "" {
		return s.cfg.Prefix + "/"
	}
	return s.cfg.Prefix + "/" + keyPrefix
}

// relativeKey converts a physical listing key back to a store-relative key.
// Keys outside the store's prefix subtree report ok=false.
func (s *Store) relativeKey(key string) (relative string, ok bool) {
	if s.cfg.Prefix == "" {
		return key, true
	}
	root := s.cfg.Prefix + "/"
	if !strings.HasPrefix(key, root) {
		return "", false
	}
	return strings.TrimPrefix(key, root), true
}
