// Package ocr - candidates.go lists the places an attachment may be downloaded from.
//
// DESIGN: Candidates are tried strictly in this order, first success wins:
//   - file proxy /f/<id> and /api/file/<id> on the app
//   - the cached response URL
//   - a presigned (or direct) storage URL
//   - the public CDN URL
package ocr

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/legalchat/auth-gateway/internal/filecache"
	"github.com/legalchat/auth-gateway/internal/sigv4"
)

// Candidate is one place a file may be downloaded from.
type Candidate struct {
	Source string
	URL    string
}

// Candidate sources, in resolution order.
const (
	SourceFileProxy     = "file-proxy"
	SourceAPIFile       = "api-file"
	SourceCacheResponse = "cache-response-url"
	SourceStorageDirect = "cache-storage-direct"
	SourcePresigned     = "cache-s3-presigned"
	SourcePublicDomain  = "cache-s3-public"
)

// producer yields zero or more candidates for a file. Producers run lazily, one
// at a time, so a presigned URL is only computed when earlier candidates failed.
type producer func(ctx context.Context, fileID string) []Candidate

// Resolver builds the ordered candidate list for a file id.
type Resolver struct {
	appBase      string
	cache        *filecache.Cache
	signer       *sigv4.Signer
	bucket       string
	publicDomain *url.URL
}

// NewResolver creates a resolver. appBase is the chat app's internal base URL;
// publicDomain may be empty.
func NewResolver(appBase string, cache *filecache.Cache, signer *sigv4.Signer, bucket, publicDomain string) *Resolver {
	r := &Resolver{
		appBase: strings.TrimRight(appBase, "/"),
		cache:   cache,
		signer:  signer,
		bucket:  strings.TrimSpace(bucket),
	}
	if publicDomain = strings.TrimSpace(publicDomain); publicDomain != "" {
		if u, err := sigv4.ParseLooseURL(publicDomain); err == nil {
			r.publicDomain = u
		}
	}
	return r
}

func (r *Resolver) producers() []producer {
	return []producer{
		r.proxyCandidates,
		r.cachedResponseCandidate,
		r.storageCandidates,
	}
}

// Each calls try for every distinct candidate in order until try returns true.
func (r *Resolver) Each(ctx context.Context, fileID string, try func(Candidate) bool) {
	seen := make(map[string]bool)
	for _, produce := range r.producers() {
		for _, c := range produce(ctx, fileID) {
			c.URL = strings.TrimSpace(c.URL)
			if c.URL == "" || seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			if try(c) {
				return
			}
		}
	}
}

// Candidates returns the full ordered candidate list (for logging and tests).
func (r *Resolver) Candidates(ctx context.Context, fileID string) []Candidate {
	var out []Candidate
	r.Each(ctx, fileID, func(c Candidate) bool {
		out = append(out, c)
		return false
	})
	return out
}

func (r *Resolver) proxyCandidates(_ context.Context, fileID string) []Candidate {
	id := url.PathEscape(fileID)
	return []Candidate{
		{Source: SourceFileProxy, URL: r.absolute("/f/" + id)},
		{Source: SourceAPIFile, URL: r.absolute("/api/file/" + id)},
	}
}

func (r *Resolver) cachedResponseCandidate(_ context.Context, fileID string) []Candidate {
	entry, ok := r.cache.Get(fileID)
	if !ok {
		return nil
	}
	return []Candidate{{Source: SourceCacheResponse, URL: r.absolute(entry.ResponseURL)}}
}

func (r *Resolver) storageCandidates(ctx context.Context, fileID string) []Candidate {
	entry, ok := r.cache.Get(fileID)
	if !ok {
		return nil
	}
	direct, key := NormalizeStorageKey(entry.StorageURL, r.bucket)
	if direct != "" {
		return []Candidate{{Source: SourceStorageDirect, URL: direct}}
	}
	if key == "" {
		return nil
	}
	var out []Candidate
	if r.signer.Ready() {
		if signed, err := r.signer.Presign(ctx, key); err == nil {
			out = append(out, Candidate{Source: SourcePresigned, URL: signed})
		}
	}
	if public := r.publicDomainURL(key); public != "" {
		out = append(out, Candidate{Source: SourcePublicDomain, URL: public})
	}
	return out
}

// absolute resolves app-relative paths against the app's internal base URL.
func (r *Resolver) absolute(value string) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return ""
	case httpPattern.MatchString(value):
		return value
	case strings.HasPrefix(value, "/"):
		return r.appBase + value
	default:
		return r.appBase + "/" + value
	}
}

func (r *Resolver) publicDomainURL(key string) string {
	if r.publicDomain == nil || r.bucket == "" {
		return ""
	}
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return ""
	}
	var parts []string
	if base := strings.Trim(r.publicDomain.Path, "/"); base != "" {
		parts = append(parts, base)
	}
	parts = append(parts, r.bucket, key)
	return r.publicDomain.Scheme + "://" + r.publicDomain.Host + "/" + sigv4.EncodePath(strings.Join(parts, "/"))
}

// =============================================================================
// STORAGE KEYS
// =============================================================================

var (
	httpPattern       = regexp.MustCompile(`(?i)^https?://`)
	s3Pattern         = regexp.MustCompile(`(?i)^s3://`)
	relativeFiles     = regexp.MustCompile(`(?i)^/?files/`)
	absoluteFilesPath = regexp.MustCompile(`(?i)^https?://[^?#]+/(?:[^?#]+/)?files/`)
)

// NormalizeStorageKey classifies a stored upload URL. An http(s) URL is returned
// as direct; s3://bucket/key and bucket/key forms are reduced to the object key.
func NormalizeStorageKey(raw, bucket string) (direct, key string) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", ""
	}
	if httpPattern.MatchString(value) {
		return value, ""
	}
	if s3Pattern.MatchString(value) {
		if u, err := url.Parse(value); err == nil {
			k := strings.TrimLeft(u.Path, "/")
			if u.Host != "" && u.Host != bucket {
				k = strings.TrimLeft(u.Host+"/"+k, "/")
			}
			return "", k
		}
	}
	k := strings.TrimLeft(value, "/")
	if bucket != "" && strings.HasPrefix(k, bucket+"/") {
		k = k[len(bucket)+1:]
	}
	return "", k
}

// IsLikelyStorageURL reports whether value looks like an object-store location
// rather than an app route.
func IsLikelyStorageURL(value string) bool {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return false
	}
	return s3Pattern.MatchString(raw) || relativeFiles.MatchString(raw) || absoluteFilesPath.MatchString(raw)
}
