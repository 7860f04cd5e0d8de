package zim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTestArchive(t *testing.T) *Archive {
	t.Helper()
	src := &MemorySource{}
	w := NewWriter(src, NewPolicy(), [16]byte{1, 2, 3})

	require.NoError(t, w.AddEntry('A', "alpha.html", "Alpha", "text/html", []byte("<p>alpha</p>")))
	require.NoError(t, w.AddEntry('A', "beta.html", "Beta", "text/html", []byte("<p>beta</p>")))
	require.NoError(t, w.AddEntry('M', "Title", "", "text/plain", []byte("Test Archive")))
	require.NoError(t, w.AddRedirect('A', "gamma.html", "Gamma", 'A', "alpha.html"))

	a, err := w.Flush()
	require.NoError(t, err)
	return a
}

func TestOpenRejectsBadMagic(t *testing.T) {
	src := NewMemorySource(make([]byte, HeaderSize))
	_, err := Open(src, 0, NewPolicy())
	require.Error(t, err)
}

func TestWriterFlushThenOpenRoundTrip(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	require.Equal(t, 4, a.EntryCount())

	e, err := a.GetEntryByUrl('A', "alpha.html")
	require.NoError(t, err)
	require.Equal(t, "Alpha", e.Title)
	data, err := e.Data()
	require.NoError(t, err)
	require.Equal(t, "<p>alpha</p>", string(data))
}

func TestGetEntryByUrlNotFound(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	_, err := a.GetEntryByUrl('A', "missing.html")
	require.Error(t, err)
}

func TestRedirectResolvesToTarget(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	e, err := a.GetEntryByUrl('A', "gamma.html")
	require.NoError(t, err)
	require.True(t, e.IsRedirect)

	resolved, err := e.Resolve()
	require.NoError(t, err)
	require.False(t, resolved.IsRedirect)
	require.Equal(t, "alpha.html", resolved.URL)

	data, err := resolved.Data()
	require.NoError(t, err)
	require.Equal(t, "<p>alpha</p>", string(data))
}

func TestMetadataHelper(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	v, err := a.Metadata("Title")
	require.NoError(t, err)
	require.Equal(t, "Test Archive", string(v))
}

func TestGetEntryByFullUrl(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	e, err := a.GetEntryByFullUrl("A/beta.html")
	require.NoError(t, err)
	require.Equal(t, "Beta", e.Title)

	_, err = a.GetEntryByFullUrl("malformed")
	require.Error(t, err)
}

func TestIterEntriesVisitsEveryEntryOnce(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	seen := map[string]bool{}
	err := a.IterEntries(func(e *Entry) error {
		seen[e.FullUrl()] = true
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 4)
	require.True(t, seen["A/alpha.html"])
	require.True(t, seen["M/Title"])
}

func TestGetEntryByTitle(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	e, err := a.GetEntryByTitle('A', "Beta")
	require.NoError(t, err)
	require.Equal(t, "beta.html", e.URL)
}

func TestVerifyChecksumOnOpenSucceedsForFreshlyFlushedArchive(t *testing.T) {
	src := &MemorySource{}
	w := NewWriter(src, NewPolicy(), [16]byte{})
	require.NoError(t, w.AddEntry('A', "a", "A", "text/plain", []byte("x")))
	a, err := w.Flush()
	require.NoError(t, err)
	a.Close()

	a2, err := Open(src, 0, NewPolicy(WithVerifyChecksumOnOpen(true)))
	require.NoError(t, err)
	defer a2.Close()
}

func TestWriterRejectsDuplicateEntry(t *testing.T) {
	src := &MemorySource{}
	w := NewWriter(src, NewPolicy(), [16]byte{})
	require.NoError(t, w.AddEntry('A', "a", "A", "text/plain", []byte("x")))
	err := w.AddEntry('A', "a", "A2", "text/plain", []byte("y"))
	require.Error(t, err)
}

func TestWriterRemoveThenFlushDropsEntryAndCluster(t *testing.T) {
	src := &MemorySource{}
	w := NewWriter(src, NewPolicy(), [16]byte{})
	require.NoError(t, w.AddEntry('A', "a", "A", "text/plain", []byte("x")))
	require.NoError(t, w.AddEntry('A', "b", "B", "text/plain", []byte("y")))
	require.NoError(t, w.RemoveEntry('A', "a"))

	a, err := w.Flush()
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, 1, a.EntryCount())
	require.Equal(t, 1, a.ClusterCount())
	_, err = a.GetEntryByUrl('A', "a")
	require.Error(t, err)
}

func TestGetContentEntryByUrlIsShorthandForContentNamespace(t *testing.T) {
	src := &MemorySource{}
	w := NewWriter(src, NewPolicy(), [16]byte{})
	require.NoError(t, w.AddEntry('C', "hello", "Hello", "text/plain", []byte("Hello\n")))
	a, err := w.Flush()
	require.NoError(t, err)
	defer a.Close()

	e, err := a.GetContentEntryByUrl("hello")
	require.NoError(t, err)
	data, err := e.Data()
	require.NoError(t, err)
	require.Equal(t, "Hello\n", string(data))
}

func TestIterEntriesNamespaceFilter(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	var urls []string
	err := a.IterEntries(func(e *Entry) error {
		urls = append(urls, e.URL)
		return nil
	}, 'M')
	require.NoError(t, err)
	require.Equal(t, []string{"Title"}, urls)
}

func TestIterClustersVisitsEveryCluster(t *testing.T) {
	a := buildTestArchive(t)
	defer a.Close()

	count := 0
	err := a.IterClusters(func(c *Cluster) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, a.ClusterCount(), count)
}

func TestOpenAtOffsetReadsArchiveEmbeddedInContainer(t *testing.T) {
	inner := buildTestArchive(t)
	innerBytes := inner.src.(*MemorySource).Bytes()
	require.NoError(t, inner.Close())

	const prefix = 64
	container := make([]byte, prefix+len(innerBytes)+32)
	copy(container[prefix:], innerBytes)
	src := NewMemorySource(container)

	a, err := Open(src, prefix, NewPolicy())
	require.NoError(t, err)
	defer a.Close()

	e, err := a.GetEntryByUrl('A', "alpha.html")
	require.NoError(t, err)
	data, err := e.Data()
	require.NoError(t, err)
	require.Equal(t, "<p>alpha</p>", string(data))
}

func TestFlushAtNonZeroOffsetWritesWithinContainerAndSuppressesTruncate(t *testing.T) {
	inner := buildTestArchive(t)
	innerBytes := inner.src.(*MemorySource).Bytes()
	require.NoError(t, inner.Close())

	const prefix = 64
	const tail = 256 // container bytes after the archive; the re-flushed archive is laid out past the old archive end and may extend beyond them
	container := make([]byte, prefix+len(innerBytes)+tail)
	copy(container[prefix:], innerBytes)
	src := NewMemorySource(container)

	a, err := Open(src, prefix, NewPolicy())
	require.NoError(t, err)

	w, err := OpenForEdit(a, NewPolicy())
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, w.AddEntry('C', "hello", "Hello", "text/plain", []byte("Hello\n")))

	a2, err := w.Flush()
	require.NoError(t, err)
	defer a2.Close()

	total, err := src.Size()
	require.NoError(t, err)
	require.GreaterOrEqual(t, total, int64(prefix+len(innerBytes)),
		"TruncateAfterWrite must be suppressed at a non-zero base offset, not shrink the Source below the container's own bytes")

	e, err := a2.GetContentEntryByUrl("hello")
	require.NoError(t, err)
	data, err := e.Data()
	require.NoError(t, err)
	require.Equal(t, "Hello\n", string(data))

	orig, err := a2.GetEntryByUrl('A', "alpha.html")
	require.NoError(t, err)
	origData, err := orig.Data()
	require.NoError(t, err)
	require.Equal(t, "<p>alpha</p>", string(origData))
}

func TestOpenForEditPreservesExistingEntries(t *testing.T) {
	a := buildTestArchive(t)
	w, err := OpenForEdit(a, NewPolicy())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	require.NoError(t, w.AddEntry('A', "delta.html", "Delta", "text/html", []byte("<p>delta</p>")))
	a2, err := w.Flush()
	require.NoError(t, err)
	defer a2.Close()

	require.Equal(t, 5, a2.EntryCount())
	e, err := a2.GetEntryByUrl('A', "alpha.html")
	require.NoError(t, err)
	data, err := e.Data()
	require.NoError(t, err)
	require.Equal(t, "<p>alpha</p>", string(data))
}
