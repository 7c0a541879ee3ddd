// Package archive keeps a copy of every successful upstream payload so a run
// can be replayed or audited without calling the agencies again.
package archive

import (
	"context"
	"mime"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// unscopedRun names the directory for fetches made outside an ingestion run.
const unscopedRun = "adhoc"

// Fetcher wraps a recall.Fetcher and writes successful bodies to a BlobStore at
// {prefix}/{runID}/{source}/{sha256}.{ext}.
type Fetcher struct {
	next   recall.Fetcher
	store  recall.BlobStore
	hasher recall.Hasher
	source recall.Source
	prefix string
	logger *zap.Logger
}

// Options configures a Fetcher.
type Options struct {
	Store  recall.BlobStore
	Hasher recall.Hasher
	Source recall.Source
	Prefix string
	Logger *zap.Logger
}

// Wrap returns next unchanged when no store is configured.
func Wrap(next recall.Fetcher, opts Options) recall.Fetcher {
	if opts.Store == nil || opts.Hasher == nil {
		return next
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		next:   next,
		store:  opts.Store,
		hasher: opts.Hasher,
		source: opts.Source,
		prefix: strings.Trim(opts.Prefix, "/"),
		logger: logger.Named("archive"),
	}
}

// Fetch implements recall.Fetcher. Archive failures are logged, never returned.
func (f *Fetcher) Fetch(ctx context.Context, req recall.FetchRequest) (recall.FetchResponse, error) {
	resp, err := f.next.Fetch(ctx, req)
	if err != nil || !resp.OK() || len(resp.Body) == 0 {
		return resp, err
	}
	key, err := f.objectPath(recall.RunIDFromContext(ctx), resp)
	if err != nil {
		f.logger.Warn("hash payload", zap.String("url", req.URL), zap.Error(err))
		return resp, nil
	}
	contentType := resp.Headers.Get("Content-Type")
	uri, err := f.store.PutObject(ctx, key, contentType, resp.Body)
	if err != nil {
		f.logger.Warn("archive payload", zap.String("url", req.URL), zap.String("path", key), zap.Error(err))
		return resp, nil
	}
	f.logger.Debug("archived payload", zap.String("url", req.URL), zap.String("uri", uri))
	return resp, nil
}

func (f *Fetcher) objectPath(runID string, resp recall.FetchResponse) (string, error) {
	digest, err := f.hasher.Hash(resp.Body)
	if err != nil {
		return "", err
	}
	if runID == "" {
		runID = unscopedRun
	}
	name := digest + "." + Extension(resp.Headers.Get("Content-Type"))
	return path.Join(f.prefix, runID, strings.ToLower(string(f.source)), name), nil
}

// Extension picks a file extension for a Content-Type header value.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "bin"
	}
	switch {
	case strings.HasSuffix(mediaType, "json"):
		return "json"
	case strings.HasSuffix(mediaType, "xml"):
		return "xml"
	case mediaType == "text/html":
		return "html"
	case mediaType == "text/markdown":
		return "md"
	case strings.HasPrefix(mediaType, "text/"):
		return "txt"
	default:
		return "bin"
	}
}
