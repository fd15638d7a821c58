// Package keyword provides the Bleve implementation of Index.
package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused so that unchanged photos are not re-indexed. If the
// mapping in code changes, remove the index directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	photoMapping := bleve.NewDocumentMapping()
	nameFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "sunset" matches
	// exactly; stemming is useless for filename fragments like "img" or "dsc".
	nameFieldMapping.Analyzer = standard.Name
	photoMapping.AddFieldMappingsAt("filename", nameFieldMapping)
	photoMapping.AddFieldMappingsAt("taken_at", bleve.NewDateTimeFieldMapping())
	im.AddDocumentMapping("photo", photoMapping)
	im.DefaultType = "photo"
	im.DefaultMapping = photoMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a photo's filename metadata by id. Underscores and dashes in
// the filename are normalized to spaces so "IMG_2024_beach.jpg" is searchable
// as "img 2024 beach" (the standard analyzer does not split on underscore).
func (b *BleveIndex) Index(ctx context.Context, photoID string, entry *Entry) error {
	normalized := *entry
	normalized.Filename = normalizeFilename(entry.Filename)
	return b.index.Index(photoID, &normalized)
}

// Search runs a match query over filenames and returns up to limit results.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 20
	}
	q := bleve.NewMatchQuery(normalizeFilename(query))
	q.SetField("filename")
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	results := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, &Result{PhotoID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Delete removes a photo from the index.
func (b *BleveIndex) Delete(ctx context.Context, photoID string) error {
	return b.index.Delete(photoID)
}

// Count returns the number of indexed photos.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func normalizeFilename(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}
