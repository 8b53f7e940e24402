// Package sigv4 implements AWS Signature Version 4 request signing for the
// S3 service, including the canonical request construction shared with the
// URL builder so that signed and transmitted paths are byte-identical.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/caskstore/caskstore/pkg/errors"
)

const (
	algorithm       = "AWS4-HMAC-SHA256"
	timeFormat      = "20060102T150405Z"
	shortTimeFormat = "20060102"

	// EmptyPayloadHash is the hex SHA-256 of a zero-length payload.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// UnsignedPayload is the documented placeholder for streaming uploads
	// whose payload hash is not computed up front.
	UnsignedPayload = "UNSIGNED-PAYLOAD"
)

// Signer signs HTTP requests with AWS Signature Version 4.
type Signer struct {
	service string
}

// New creates a signer for the S3 service.
func New() *Signer {
	return &Signer{service: "s3"}
}

// Sign computes the SigV4 signature for req and injects the Authorization,
// X-Amz-Date, X-Amz-Content-Sha256, and (when a session token is present)
// X-Amz-Security-Token headers. The region must be the resolved signing
// region, which for GCS-style endpoints is the fixed "auto" token rather
// than the configured region.
func (s *Signer) Sign(req *http.Request, creds aws.Credentials, region, payloadHash string, signingTime time.Time) error {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return errors.New(errors.ErrCodeCredentialsMissing,
			"cannot sign request without complete credentials")
	}
	if region == "" {
		return errors.New(errors.ErrCodeSigningFailed, "signing region is empty")
	}
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	t := signingTime.UTC()
	amzDate := t.Format(timeFormat)
	dateStamp := t.Format(shortTimeFormat)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	if creds.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(host, req.Header)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		CanonicalQueryString(req.URL.Query()),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, region, s.service, "aws4_request"}, "/")

	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveSigningKey(creds.SecretAccessKey, dateStamp, region, s.service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	req.Header.Set("Authorization", strings.Join([]string{
		algorithm + " Credential=" + creds.AccessKeyID + "/" + scope,
		"SignedHeaders=" + signedHeaders,
		"Signature=" + signature,
	}, ", "))

	return nil
}

// canonicalURI returns the percent-encoded path exactly as transmitted.
func canonicalURI(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

// canonicalizeHeaders builds the canonical headers block and the
// signed-headers list. The host header is always signed, along with every
// x-amz-* header and content-type/content-md5 when present.
func canonicalizeHeaders(host string, header http.Header) (canonical, signed string) {
	headers := map[string]string{"host": host}

	for name, values := range header {
		lower := strings.ToLower(name)
		if lower == "content-type" || lower == "content-md5" || strings.HasPrefix(lower, "x-amz-") {
			headers[lower] = trimHeaderValue(strings.Join(values, ","))
		}
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(headers[name])
		b.WriteByte('\n')
	}

	return b.String(), strings.Join(names, ";")
}

// trimHeaderValue trims leading/trailing whitespace and collapses
// sequential inner spaces, as the canonical form requires.
func trimHeaderValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// CanonicalQueryString encodes query parameters in canonical form: keys and
// values URI-encoded (slashes included) and sorted by key name, then value.
// The sort compares names and values separately rather than the joined
// "key=value" strings, since '=' would otherwise misorder a name that is a
// proper prefix of another (e.g. "a" after "a1"). The store client uses the
// same function to build the transmitted query so the two are
// byte-identical.
func CanonicalQueryString(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	type pair struct {
		key, value string
	}
	pairs := make([]pair, 0, len(values))
	for key, vals := range values {
		encKey := URIEncode(key, true)
		for _, v := range vals {
			pairs = append(pairs, pair{key: encKey, value: URIEncode(v, true)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.key + "=" + p.value
	}
	return strings.Join(parts, "&")
}

// URIEncode percent-encodes s per the SigV4 rules: unreserved characters
// (A-Z, a-z, 0-9, '-', '_', '.', '~') pass through, everything else becomes
// uppercase %XX. When encodeSlash is false, '/' is preserved literally so
// object-key paths keep their segment structure.
func URIEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return b.String()
}

// EncodePath percent-encodes each segment of a slash-delimited object key,
// preserving the slashes.
func EncodePath(key string) string {
	return URIEncode(key, false)
}

// HashPayload returns the hex SHA-256 digest of payload, suitable for the
// x-amz-content-sha256 header.
func HashPayload(payload []byte) string {
	return hashHex(payload)
}

// deriveSigningKey performs the four-step HMAC-SHA256 chain seeded from the
// secret key.
func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
