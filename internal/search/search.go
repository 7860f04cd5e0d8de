// Package search builds and queries a Bluge full-text index over a
// zim.Archive's content entries. It lives outside pkg/zim: indexing is
// an external collaborator exercising the archive's read API, not part
// of the archive format itself.
package search

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"

	"github.com/bevelgacom/gozim/pkg/zim"
)

// Index wraps an opened Bluge reader over a previously built index.
type Index struct {
	reader *bluge.Reader
}

// DefaultIndexPath mirrors the teacher's convention of an index file
// sitting next to the archive it covers.
func DefaultIndexPath(archivePath string) string {
	return strings.TrimSuffix(archivePath, filepath.Ext(archivePath)) + ".bluge"
}

// SearchResult is one hit, carrying enough to render a link and resolve
// the full entry later via Archive.GetEntryByFullUrl.
type SearchResult struct {
	FullUrl string
	Title   string
	Score   float64
}

type indexEntry struct {
	fullURL string
	title   string
}

var indexableNamespaces = map[byte]bool{'A': true, 'C': true}

var skipExtensions = []string{".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico"}

func indexable(e *zim.Entry) bool {
	if e.IsRedirect || !indexableNamespaces[e.Namespace] {
		return false
	}
	lower := strings.ToLower(e.URL)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

// Build walks a, indexing every content entry whose namespace and
// extension mark it as an article, using a reader/worker/writer
// pipeline the way the teacher's BuildBlugeIndex does, adapted from
// ZIM directory entries to zim.Archive.IterEntries.
func Build(a *zim.Archive, indexPath string) error {
	if _, err := os.Stat(indexPath); err == nil {
		if err := os.RemoveAll(indexPath); err != nil {
			return fmt.Errorf("search: remove existing index: %w", err)
		}
	}

	config := bluge.DefaultConfig(indexPath)
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return fmt.Errorf("search: open index writer: %w", err)
	}
	defer writer.Close()

	numWorkers := runtime.NumCPU()
	entryChan := make(chan indexEntry, numWorkers*256)
	docChan := make(chan *bluge.Document, numWorkers*256)
	errChan := make(chan error, 1)

	var readerWg, workerWg, writerWg sync.WaitGroup

	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		defer close(entryChan)
		err := a.IterEntries(func(e *zim.Entry) error {
			if indexable(e) {
				entryChan <- indexEntry{fullURL: e.FullUrl(), title: e.EffectiveTitle()}
			}
			return nil
		})
		if err != nil {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	workerWg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer workerWg.Done()
			for ie := range entryChan {
				doc := bluge.NewDocument(ie.fullURL)
				doc.AddField(bluge.NewTextField("title", ie.title).StoreValue().SearchTermPositions())
				doc.AddField(bluge.NewTextField("url", ie.fullURL).StoreValue())
				docChan <- doc
			}
		}()
	}
	go func() {
		workerWg.Wait()
		close(docChan)
	}()

	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		for doc := range docChan {
			if err := writer.Insert(doc); err != nil {
				select {
				case errChan <- err:
				default:
				}
			}
		}
	}()

	readerWg.Wait()
	writerWg.Wait()

	select {
	case err := <-errChan:
		return fmt.Errorf("search: build index: %w", err)
	default:
		return nil
	}
}

// Open loads an already-built index for querying.
func Open(indexPath string) (*Index, error) {
	config := bluge.DefaultConfig(indexPath)
	reader, err := bluge.OpenReader(config)
	if err != nil {
		return nil, fmt.Errorf("search: open index: %w", err)
	}
	return &Index{reader: reader}, nil
}

func (i *Index) Close() error { return i.reader.Close() }

// Search runs a match query against the title field, returning up to
// maxResults hits ordered by score.
func (i *Index) Search(query string, maxResults int) ([]SearchResult, error) {
	q := bluge.NewMatchQuery(query).SetField("title")
	req := bluge.NewTopNSearch(maxResults, q).WithStandardAggregations()

	dmi, err := i.reader.Search(nil, req)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}

	var results []SearchResult
	match, err := dmi.Next()
	for err == nil && match != nil {
		var r SearchResult
		r.Score = match.Score
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				r.FullUrl = string(value)
			case "title":
				r.Title = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		results = append(results, r)
		match, err = dmi.Next()
	}
	return results, nil
}

// DocumentCount returns the number of documents in the index.
func (i *Index) DocumentCount() (uint64, error) {
	return i.reader.Count()
}
