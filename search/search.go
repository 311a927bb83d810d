// Package search talks to the search/retrieval collaborator. The core
// treats it as a black box: a query in, ranked documents and candidate
// image URLs out.
package search

import "context"

// Document is one ranked retrieval result. Immutable once fetched.
type Document struct {
	Title   string
	URL     string
	Summary string
	Content string
}

// Image is an unvalidated media reference. Width and height are zero
// when the collaborator does not report them.
type Image struct {
	URL    string
	Width  int
	Height int
}

// Results is the collaborator's answer, in relevance order.
type Results struct {
	Documents []Document
	Images    []Image
}

// Client is the search collaborator interface.
type Client interface {
	// Search returns ranked documents (and any images the collaborator
	// includes) for the query.
	Search(ctx context.Context, query string, maxResults int) (*Results, error)
	// SearchImages returns candidate image references for the query.
	SearchImages(ctx context.Context, query string, maxResults int) ([]Image, error)
}
