// Package objectstore lists and fetches tool scripts from an object store.
//
// Two stores are provided: S3Store backed by aws-sdk-go-v2, and LocalStore
// which serves a directory tree with the same paginated contract.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrListingIncomplete is returned when pagination could not be drained.
// A partial listing must never be treated as authoritative.
var ErrListingIncomplete = errors.New("object listing incomplete")

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("object not found")

// maxPages bounds ListAll against a store that never stops paginating.
const maxPages = 100000

// ObjectSummary is one entry of a listing.
type ObjectSummary struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"lastModified"`
}

// ListPage is one page of a listing. NextToken is set when Truncated.
type ListPage struct {
	Objects   []ObjectSummary
	NextToken string
	Truncated bool
}

// Ref addresses an object. An empty Bucket means the store's default bucket.
type Ref struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Object is a fetched object.
type Object struct {
	Key          string
	Content      []byte
	LastModified time.Time
}

// Store is the object-store contract consumed by the synchronizer.
type Store interface {
	// List returns the page of objects under prefix starting at token.
	List(ctx context.Context, prefix, token string) (*ListPage, error)
	// Get fetches an object's content and last-modified time.
	Get(ctx context.Context, ref Ref) (*Object, error)
}

// ListAll drains every page under prefix. It fails with ErrListingIncomplete
// unless the store reports the final page.
func ListAll(ctx context.Context, store Store, prefix string) ([]ObjectSummary, error) {
	var (
		all   []ObjectSummary
		token string
		seen  = make(map[string]bool)
	)

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrListingIncomplete, err)
		}

		result, err := store.List(ctx, prefix, token)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrListingIncomplete, page, err)
		}
		all = append(all, result.Objects...)

		if !result.Truncated {
			log.Debug().
				Str("prefix", prefix).
				Int("objects", len(all)).
				Int("pages", page+1).
				Msg("Listing drained")
			return all, nil
		}

		if result.NextToken == "" || seen[result.NextToken] {
			return nil, fmt.Errorf("%w: truncated page %d without a usable continuation token", ErrListingIncomplete, page)
		}
		seen[result.NextToken] = true
		token = result.NextToken
	}

	return nil, fmt.Errorf("%w: more than %d pages", ErrListingIncomplete, maxPages)
}
