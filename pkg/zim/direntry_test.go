package zim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirEntryEncodeDecodeContentRoundTrip(t *testing.T) {
	d := DirEntry{
		MimeType:   3,
		Namespace:  'A',
		Revision:   0,
		ClusterNum: 7,
		BlobNum:    2,
		URL:        "some/path.html",
		Title:      "Some Title",
	}
	enc := d.encode()
	require.Equal(t, d.size(), len(enc))

	src := NewMemorySource(enc)
	got, err := decodeDirEntry(src, 0)
	require.NoError(t, err)
	require.Equal(t, d.MimeType, got.MimeType)
	require.Equal(t, d.Namespace, got.Namespace)
	require.Equal(t, d.ClusterNum, got.ClusterNum)
	require.Equal(t, d.BlobNum, got.BlobNum)
	require.Equal(t, d.URL, got.URL)
	require.Equal(t, d.Title, got.Title)
	require.False(t, got.IsRedirect)
}

func TestDirEntryEncodeDecodeRedirectRoundTrip(t *testing.T) {
	d := DirEntry{
		MimeType:    RedirectMimeType,
		Namespace:   'A',
		RedirectIdx: 11,
		URL:         "redirect-source",
		IsRedirect:  true,
	}
	enc := d.encode()
	src := NewMemorySource(enc)
	got, err := decodeDirEntry(src, 0)
	require.NoError(t, err)
	require.True(t, got.IsRedirect)
	require.Equal(t, uint32(11), got.RedirectIdx)
}

func TestDirEntryEffectiveTitleFallsBackToURL(t *testing.T) {
	d := DirEntry{URL: "foo/bar"}
	require.Equal(t, "foo/bar", d.EffectiveTitle())

	d.Title = "Bar"
	require.Equal(t, "Bar", d.EffectiveTitle())
}

func TestDirEntryParamsPreservedVerbatim(t *testing.T) {
	d := DirEntry{
		Namespace: 'A',
		URL:       "x",
		Params:    []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
	enc := d.encode()
	src := NewMemorySource(enc)
	got, err := decodeDirEntry(src, 0)
	require.NoError(t, err)
	require.Equal(t, d.Params, got.Params)
}

func TestDecodeDirEntryPrefixMatchesFullDecode(t *testing.T) {
	d := DirEntry{Namespace: 'A', URL: "path/to/thing", Title: "Title is irrelevant here"}
	enc := d.encode()
	src := NewMemorySource(enc)

	ns, url, err := decodeDirEntryPrefix(src, 0)
	require.NoError(t, err)
	require.Equal(t, d.Namespace, ns)
	require.Equal(t, d.URL, url)
}

func TestValidateNamespaceRejectsUnknownByte(t *testing.T) {
	require.NoError(t, validateNamespace('A'))
	require.NoError(t, validateNamespace('C'))
	require.NoError(t, validateNamespace('M'))
	require.Error(t, validateNamespace('Z'))
}
