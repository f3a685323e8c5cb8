// Package sigv4 - presign.go builds SigV4 presigned GET URLs for S3-compatible stores.
//
// DESIGN: Only query-string presigning of GET is needed, so the signer is a
// small pure function of (credentials, clock, key):
//   - canonical request: GET, encoded URI, sorted query, host header only, UNSIGNED-PAYLOAD
//   - string to sign:    algorithm, timestamp, scope, sha256(canonical request)
//   - signing key:       HMAC chain date -> region -> "s3" -> "aws4_request"
//
// Path-style (endpoint/bucket/key) and virtual-hosted style (bucket.endpoint/key)
// are both supported. Credentials come from an aws.CredentialsProvider.
package sigv4

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

const (
	algorithm     = "AWS4-HMAC-SHA256"
	service       = "s3"
	terminator    = "aws4_request"
	unsignedBody  = "UNSIGNED-PAYLOAD"
	amzDateFormat = "20060102T150405Z"
)

// ErrNotConfigured is returned by Presign when the signer lacks endpoint, bucket or credentials.
var ErrNotConfigured = errors.New("sigv4: signer not configured")

// Config describes the object store.
type Config struct {
	Endpoint    string
	Bucket      string
	Region      string
	PathStyle   bool
	Expires     time.Duration
	Credentials aws.CredentialsProvider
}

// Signer presigns GET URLs.
type Signer struct {
	endpoint  *url.URL
	bucket    string
	region    string
	pathStyle bool
	expires   time.Duration
	creds     aws.CredentialsProvider
	now       func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// New creates a signer. An empty endpoint yields a signer that is not Ready.
func New(cfg Config, opts ...Option) (*Signer, error) {
	s := &Signer{
		bucket:    strings.TrimSpace(cfg.Bucket),
		region:    cfg.Region,
		pathStyle: cfg.PathStyle,
		expires:   cfg.Expires,
		creds:     cfg.Credentials,
		now:       time.Now,
	}
	if s.region == "" {
		s.region = "us-east-1"
	}
	if s.expires <= 0 {
		s.expires = 5 * time.Minute
	}
	if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
		u, err := ParseLooseURL(ep)
		if err != nil {
			return nil, fmt.Errorf("sigv4: endpoint: %w", err)
		}
		s.endpoint = u
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ready reports whether Presign can produce URLs.
func (s *Signer) Ready() bool {
	return s != nil && s.endpoint != nil && s.bucket != "" && s.creds != nil
}

// Bucket returns the configured bucket.
func (s *Signer) Bucket() string {
	if s == nil {
		return ""
	}
	return s.bucket
}

// Presign returns a time-limited GET URL for key.
func (s *Signer) Presign(ctx context.Context, key string) (string, error) {
	if !s.Ready() {
		return "", ErrNotConfigured
	}
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", errors.New("sigv4: empty key")
	}
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("sigv4: retrieve credentials: %w", err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return "", ErrNotConfigured
	}

	now := s.now().UTC()
	amzDate := now.Format(amzDateFormat)
	dateStamp := amzDate[:8]
	scope := strings.Join([]string{dateStamp, s.region, service, terminator}, "/")

	host := s.endpoint.Host
	if !s.pathStyle {
		host = s.bucket + "." + host
	}
	parts := []string{strings.Trim(s.endpoint.Path, "/")}
	if s.pathStyle {
		parts = append(parts, s.bucket)
	}
	parts = append(parts, key)
	canonicalURI := "/" + EncodePath(strings.Join(parts, "/"))

	query := map[string]string{
		"X-Amz-Algorithm":     algorithm,
		"X-Amz-Credential":    creds.AccessKeyID + "/" + scope,
		"X-Amz-Date":          amzDate,
		"X-Amz-Expires":       strconv.Itoa(int(s.expires / time.Second)),
		"X-Amz-SignedHeaders": "host",
	}
	if creds.SessionToken != "" {
		query["X-Amz-Security-Token"] = creds.SessionToken
	}
	canonicalQuery := canonicalQueryString(query)

	canonicalRequest := strings.Join([]string{
		"GET",
		canonicalURI,
		canonicalQuery,
		"host:" + host,
		"",
		"host",
		unsignedBody,
	}, "\n")

	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		sha256Hex(canonicalRequest),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(signingKey(creds.SecretAccessKey, dateStamp, s.region), stringToSign))

	return fmt.Sprintf("%s://%s%s?%s&X-Amz-Signature=%s", s.endpoint.Scheme, host, canonicalURI, canonicalQuery, signature), nil
}

func signingKey(secret, dateStamp, region string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, terminator)
}

func canonicalQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, Escape(k)+"="+Escape(params[k]))
	}
	return strings.Join(pairs, "&")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
