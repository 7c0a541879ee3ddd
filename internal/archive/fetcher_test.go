package archive

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recall-ingest/internal/hash/sha256"
	"github.com/JakeFAU/recall-ingest/internal/recall"
	"github.com/JakeFAU/recall-ingest/internal/storage/memory"
)

type stubFetcher struct {
	resp recall.FetchResponse
	err  error
}

func (s stubFetcher) Fetch(context.Context, recall.FetchRequest) (recall.FetchResponse, error) {
	return s.resp, s.err
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket gone")
}

func jsonResponse(status int, body string) recall.FetchResponse {
	return recall.FetchResponse{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"application/json; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func TestWrapArchivesSuccessfulBody(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	fetcher := Wrap(stubFetcher{resp: jsonResponse(http.StatusOK, "hello world")}, Options{
		Store:  blobs,
		Hasher: sha256.New(),
		Source: recall.SourceFDA,
		Prefix: "/raw/",
	})

	ctx := recall.WithRunID(context.Background(), "run-7")
	resp, err := fetcher.Fetch(ctx, recall.FetchRequest{URL: "https://api.fda.gov"})
	require.NoError(t, err)
	require.Equal(t, "hello world", string(resp.Body))

	want := "raw/run-7/fda/b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9.json"
	require.Equal(t, []string{want}, blobs.Paths())
	data, contentType, ok := blobs.Object(want)
	require.True(t, ok)
	require.Equal(t, "hello world", string(data))
	require.Equal(t, "application/json; charset=utf-8", contentType)
}

func TestWrapSkipsFailures(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	opts := Options{Store: blobs, Hasher: sha256.New(), Source: recall.SourceCPSC}

	_, err := Wrap(stubFetcher{resp: jsonResponse(http.StatusServiceUnavailable, "down")}, opts).
		Fetch(context.Background(), recall.FetchRequest{})
	require.NoError(t, err)

	boom := errors.New("reset")
	_, err = Wrap(stubFetcher{err: boom}, opts).Fetch(context.Background(), recall.FetchRequest{})
	require.ErrorIs(t, err, boom)
	require.Empty(t, blobs.Paths())
}

func TestWrapUnscopedRun(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	_, err := Wrap(stubFetcher{resp: jsonResponse(http.StatusOK, "x")}, Options{
		Store: blobs, Hasher: sha256.New(), Source: recall.SourceNHTSA,
	}).Fetch(context.Background(), recall.FetchRequest{})
	require.NoError(t, err)
	require.Len(t, blobs.Paths(), 1)
	require.Contains(t, blobs.Paths()[0], "adhoc/nhtsa/")
}

func TestWrapStoreFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fetcher := Wrap(stubFetcher{resp: jsonResponse(http.StatusOK, "x")}, Options{
		Store: failingStore{}, Hasher: sha256.New(), Source: recall.SourceFDA,
	})
	resp, err := fetcher.Fetch(context.Background(), recall.FetchRequest{})
	require.NoError(t, err)
	require.Equal(t, "x", string(resp.Body))
}

func TestWrapWithoutStoreIsPassthrough(t *testing.T) {
	t.Parallel()

	next := stubFetcher{}
	require.Equal(t, recall.Fetcher(next), Wrap(next, Options{}))
}

func TestExtension(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"application/json":         "json",
		"application/rss+xml":      "xml",
		"text/xml; charset=utf-8":  "xml",
		"text/html":                "html",
		"text/plain":               "txt",
		"application/octet-stream": "bin",
		"":                         "bin",
	}
	for in, want := range cases {
		require.Equal(t, want, Extension(in), in)
	}
}
