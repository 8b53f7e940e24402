// Package s3 implements the object store client for S3 and S3-compatible
// services (MinIO, GCS, DigitalOcean Spaces, Wasabi, Backblaze B2,
// LocalStack). Every operation produces a SigV4-signed request through the
// endpoint's resolved URL style and executes it under the store's retry
// policy, concurrency bound, and circuit breaker.
package s3

import (
	"bytes"
	"context"
	stderr "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/klauspost/compress/gzip"

	"github.com/caskstore/caskstore/internal/circuit"
	"github.com/caskstore/caskstore/internal/config"
	"github.com/caskstore/caskstore/internal/endpoint"
	"github.com/caskstore/caskstore/internal/metrics"
	"github.com/caskstore/caskstore/internal/sigv4"
	"github.com/caskstore/caskstore/pkg/errors"
	"github.com/caskstore/caskstore/pkg/retry"
	"github.com/caskstore/caskstore/pkg/types"
)

// Store is an ObjectStore bound to one bucket/prefix pair. The configuration
// and signing context are derived once at open time and shared read-only
// across concurrent operations.
type Store struct {
	cfg  *config.Config
	sctx *endpoint.SigningContext

	// endpointHost distinguishes stores pointing the same bucket/prefix at
	// different services in Location and Identifiers.
	endpointHost string

	creds     aws.CredentialsProvider
	signer    *sigv4.Signer
	transport Transport
	retryer   *retry.Retryer
	breaker   *circuit.Breaker
	collector *metrics.Collector
	logger    *slog.Logger

	// sem bounds concurrent in-flight requests. A slot is held only for
	// the duration of one HTTP attempt, never across backoff sleeps.
	sem chan struct{}

	mu      sync.RWMutex
	metrics StoreMetrics
}

// StoreMetrics tracks per-store operation counters.
type StoreMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	Retries         int64         `json:"retries"`
	BytesUploaded   int64         `json:"bytes_uploaded"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error"`
	LastErrorTime   time.Time     `json:"last_error_time"`
}

// Options carries optional collaborators for Open. A nil Options uses the
// default credential chain and HTTP transport.
type Options struct {
	// Credentials supplies per-request credentials. When nil, the default
	// provider chain (environment, shared credentials file, instance role)
	// is loaded.
	Credentials aws.CredentialsProvider

	// Transport issues the signed requests. When nil, a pooled net/http
	// client is used.
	Transport Transport

	// Logger for structured operation logging.
	Logger *slog.Logger
}

// Open validates cfg, resolves the endpoint, and constructs a store. No
// network call is made; configuration errors surface here.
func Open(ctx context.Context, cfg *config.Config, opts *Options) (*Store, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrCodeMissingConfig, "store configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sctx, err := endpoint.Resolve(cfg.Endpoint, cfg.Region)
	if err != nil {
		return nil, err
	}

	// Endpoint is validated as an absolute URL above.
	endpointURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Newf(errors.ErrCodeConfigValidation,
			"endpoint %q is not an absolute URL", cfg.Endpoint).WithCause(err)
	}

	if opts == nil {
		opts = &Options{}
	}

	creds := opts.Credentials
	if creds == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, errors.New(errors.ErrCodeCredentialsMissing,
				"failed to load default credential chain").WithCause(err)
		}
		creds = awsCfg.Credentials
	}

	transport := opts.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "s3-store", "bucket", cfg.Bucket)

	var breaker *circuit.Breaker
	if cfg.CircuitBreaker.Enabled {
		breaker = circuit.New(cfg.Bucket, circuit.Config{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			Timeout:          cfg.CircuitBreaker.Timeout,
			IsFailure:        errors.IsRetryable,
		})
	}

	var collector *metrics.Collector
	if cfg.Metrics {
		collector = metrics.NewCollector("caskstore")
	}

	store := &Store{
		cfg:          cfg,
		sctx:         sctx,
		endpointHost: endpointURL.Host,
		creds:        creds,
		signer:       sigv4.New(),
		transport:    transport,
		retryer: retry.New(retry.Config{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Jitter:      true,
		}),
		breaker:   breaker,
		collector: collector,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrency),
	}

	logger.Info("object store opened",
		"style", sctx.Style.String(),
		"signing_region", sctx.Region,
		"prefix", cfg.Prefix,
		"max_concurrency", cfg.MaxConcurrency)

	return store, nil
}

// WriteBytes stores data under key via a signed PUT. Re-writing identical
// bytes to the same key leaves the store in the same observable state.
func (s *Store) WriteBytes(ctx context.Context, key string, data []byte) error {
	start := time.Now()

	body := data
	contentEncoding := ""
	if s.cfg.Compress {
		compressed, err := gzipBytes(data)
		if err != nil {
			return errors.New(errors.ErrCodeInternalError, "payload compression failed").
				WithOperation("WriteBytes").WithKey(key).WithCause(err)
		}
		body = compressed
		contentEncoding = "gzip"
	}

	_, err := s.do(ctx, storeRequest{
		operation:       "WriteBytes",
		method:          http.MethodPut,
		key:             s.fullKey(key),
		body:            body,
		payloadHash:     sigv4.HashPayload(body),
		contentType:     detectContentType(key),
		contentEncoding: contentEncoding,
		timeout:         s.cfg.WriteTimeout,
	})
	s.recordOperation("WriteBytes", time.Since(start), err)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.metrics.BytesUploaded += int64(len(body))
	s.mu.Unlock()
	return nil
}

// ReadBytes retrieves the object under key via a signed GET. Absent keys
// surface an OBJECT_NOT_FOUND error.
func (s *Store) ReadBytes(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	resp, err := s.do(ctx, storeRequest{
		operation:   "ReadBytes",
		method:      http.MethodGet,
		key:         s.fullKey(key),
		payloadHash: sigv4.EmptyPayloadHash,
		timeout:     s.cfg.ReadTimeout,
	})
	s.recordOperation("ReadBytes", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	data := resp.body
	if strings.EqualFold(resp.header.Get("Content-Encoding"), "gzip") {
		data, err = gunzipBytes(data)
		if err != nil {
			return nil, errors.New(errors.ErrCodeParseFailed, "stored payload is not valid gzip").
				WithOperation("ReadBytes").WithKey(key).WithCause(err)
		}
	}

	s.mu.Lock()
	s.metrics.BytesDownloaded += int64(len(data))
	s.mu.Unlock()
	return data, nil
}

// DeleteObject removes the object under key. Deleting an absent key is not
// an error.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	start := time.Now()

	_, err := s.do(ctx, storeRequest{
		operation:   "DeleteObject",
		method:      http.MethodDelete,
		key:         s.fullKey(key),
		payloadHash: sigv4.EmptyPayloadHash,
		timeout:     s.cfg.WriteTimeout,
	})
	if err != nil && errors.IsNotFound(err) {
		err = nil
	}
	s.recordOperation("DeleteObject", time.Since(start), err)
	return err
}

// HealthCheck verifies the bucket is reachable with the configured
// credentials via a signed HEAD request.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.do(ctx, storeRequest{
		operation:   "HealthCheck",
		method:      http.MethodHead,
		payloadHash: sigv4.EmptyPayloadHash,
		timeout:     s.cfg.ReadTimeout,
	})
	if err != nil {
		var se *errors.StoreError
		if stderr.As(err, &se) && se.Code == errors.ErrCodeObjectNotFound {
			return errors.Newf(errors.ErrCodeBucketNotFound,
				"bucket %s not found", s.cfg.Bucket).WithCause(err)
		}
		return err
	}
	return nil
}

// ReadBatch reads many keys concurrently under the store's parallelism
// bound. The result maps each successfully read key to its bytes; the first
// error is returned when no key could be read.
func (s *Store) ReadBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return make(map[string][]byte), nil
	}

	type result struct {
		key  string
		data []byte
		err  error
	}

	resultCh := make(chan result, len(keys))
	for _, key := range keys {
		go func(k string) {
			data, err := s.ReadBytes(ctx, k)
			resultCh <- result{key: k, data: data, err: err}
		}(key)
	}

	results := make(map[string][]byte, len(keys))
	var firstErr error
	for i := 0; i < len(keys); i++ {
		res := <-resultCh
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		results[res.key] = res.data
	}

	if firstErr != nil && len(results) == 0 {
		return nil, firstErr
	}
	return results, nil
}

// WriteBatch writes many objects concurrently under the store's parallelism
// bound.
func (s *Store) WriteBatch(ctx context.Context, objects map[string][]byte) error {
	if len(objects) == 0 {
		return nil
	}

	type result struct {
		key string
		err error
	}

	resultCh := make(chan result, len(objects))
	for key, data := range objects {
		go func(k string, d []byte) {
			resultCh <- result{key: k, err: s.WriteBytes(ctx, k, d)}
		}(key, data)
	}

	var failed []string
	for i := 0; i < len(objects); i++ {
		res := <-resultCh
		if res.err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", res.key, res.err))
		}
	}

	if len(failed) > 0 {
		return errors.Newf(errors.ErrCodeOperationFailed,
			"batch write failed for %d objects: %s", len(failed), strings.Join(failed, "; ")).
			WithOperation("WriteBatch")
	}
	return nil
}

// Location returns the store's root address. The endpoint host is part of
// the address so two stores pointing the same bucket/prefix at different
// services never hand out colliding addresses.
func (s *Store) Location() string {
	loc := "s3://" + s.endpointHost + "/" + s.cfg.Bucket
	if s.cfg.Prefix != "" {
		loc += "/" + s.cfg.Prefix
	}
	return loc
}

// Identifiers returns the identifiers this store answers to.
func (s *Store) Identifiers() []string {
	ids := []string{s.Location()}
	if s.cfg.Identifier != "" {
		ids = append(ids, s.cfg.Identifier)
	}
	return ids
}

// Metrics returns a snapshot of the store's operation counters.
func (s *Store) Metrics() StoreMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// MetricsHandler exposes the prometheus registry when metrics are enabled.
func (s *Store) MetricsHandler() http.Handler {
	return s.collector.Handler()
}

// Close releases store resources.
func (s *Store) Close() error {
	return nil
}

// storeRequest describes one logical backend request.
type storeRequest struct {
	operation       string
	method          string
	key             string // full physical key; empty for bucket-level requests
	query           url.Values
	body            []byte
	payloadHash     string
	contentType     string
	contentEncoding string
	timeout         time.Duration
}

// storeResponse is the successful outcome of a storeRequest.
type storeResponse struct {
	status int
	header http.Header
	body   []byte
}

// do executes one logical operation: build the URL, then under the retry
// policy sign and send a fresh request per attempt through the concurrency
// limiter, circuit breaker, and transport.
func (s *Store) do(ctx context.Context, req storeRequest) (*storeResponse, error) {
	fullURL, _, _ := s.sctx.BuildURL(s.cfg.Bucket, req.key)
	if len(req.query) > 0 {
		// The canonical encoding is also the transmitted encoding, so the
		// signed and sent query strings are byte-identical.
		fullURL += "?" + sigv4.CanonicalQueryString(req.query)
	}

	retryer := s.retryer.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		s.mu.Lock()
		s.metrics.Retries++
		s.mu.Unlock()
		s.collector.RecordRetry(req.operation)
		s.logger.Warn("retrying operation",
			"operation", req.operation,
			"key", req.key,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	})

	var resp *storeResponse
	err := retryer.DoWithContext(ctx, func(ctx context.Context) error {
		attempt, err := s.attempt(ctx, req, fullURL)
		if err != nil {
			return err
		}
		resp = attempt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// attempt issues a single signed HTTP request. Each attempt constructs and
// signs a fresh request with freshly retrieved credentials.
func (s *Store) attempt(ctx context.Context, req storeRequest, fullURL string) (*storeResponse, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.New(errors.ErrCodeOperationCanceled, "canceled waiting for concurrency slot").
			WithOperation(req.operation).WithKey(req.key).WithCause(ctx.Err())
	}
	defer func() { <-s.sem }()
	s.collector.InflightInc()
	defer s.collector.InflightDec()

	attemptCtx := ctx
	var cancel context.CancelFunc
	if req.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, req.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method, fullURL, bodyReader)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternalError, "failed to build request").
			WithOperation(req.operation).WithKey(req.key).WithCause(err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.contentEncoding != "" {
		httpReq.Header.Set("Content-Encoding", req.contentEncoding)
	}

	creds, err := s.creds.Retrieve(attemptCtx)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCredentialsMissing, "credential provider failed").
			WithOperation(req.operation).WithKey(req.key).WithCause(err)
	}

	if err := s.signer.Sign(httpReq, creds, s.sctx.Region, req.payloadHash, time.Now()); err != nil {
		var se *errors.StoreError
		if stderr.As(err, &se) {
			return nil, se.WithOperation(req.operation).WithKey(req.key)
		}
		return nil, err
	}

	var httpResp *http.Response
	send := func() error {
		var sendErr error
		httpResp, sendErr = s.transport.RoundTrip(httpReq)
		if sendErr != nil {
			return s.classifyTransportError(ctx, attemptCtx, req, sendErr)
		}
		if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
			return nil
		}
		return errors.FromHTTPStatus(httpResp.StatusCode, req.operation, req.key)
	}

	if s.breaker != nil {
		err = s.breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		if httpResp != nil && httpResp.Body != nil {
			_, _ = io.Copy(io.Discard, httpResp.Body)
			_ = httpResp.Body.Close()
		}
		return nil, err
	}

	var body []byte
	if httpResp.Body != nil {
		defer httpResp.Body.Close()
		body, err = io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, errors.New(errors.ErrCodeNetworkError, "failed to read response body").
				WithOperation(req.operation).WithKey(req.key).WithCause(err)
		}
	}

	return &storeResponse{
		status: httpResp.StatusCode,
		header: httpResp.Header,
		body:   body,
	}, nil
}

// classifyTransportError maps I/O failures onto the retry taxonomy:
// per-attempt deadline expiry is a retryable timeout, parent-context
// cancellation is fatal, everything else is a retryable network error.
func (s *Store) classifyTransportError(parent, attempt context.Context, req storeRequest, err error) error {
	if parent.Err() != nil {
		return errors.New(errors.ErrCodeOperationCanceled, "operation canceled").
			WithOperation(req.operation).WithKey(req.key).WithCause(err)
	}
	if attempt.Err() != nil && stderr.Is(attempt.Err(), context.DeadlineExceeded) {
		return errors.Newf(errors.ErrCodeOperationTimeout,
			"operation timed out after %s", req.timeout).
			WithOperation(req.operation).WithKey(req.key).WithCause(err)
	}
	return errors.New(errors.ErrCodeNetworkError, "transport request failed").
		WithOperation(req.operation).WithKey(req.key).WithCause(err)
}

// fullKey applies the store prefix uniformly to every operation.
func (s *Store) fullKey(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	if key == "" {
		return s.cfg.Prefix
	}
	return s.cfg.Prefix + "/" + key
}

func (s *Store) recordOperation(operation string, duration time.Duration, err error) {
	s.collector.RecordOperation(operation, duration, err)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Requests++
	if err != nil {
		s.metrics.Errors++
		s.metrics.LastError = err.Error()
		s.metrics.LastErrorTime = time.Now()
	}

	if s.metrics.Requests == 1 {
		s.metrics.AverageLatency = duration
	} else {
		s.metrics.AverageLatency = time.Duration(
			(int64(s.metrics.AverageLatency)*9 + int64(duration)) / 10,
		)
	}
}

func detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var _ types.ObjectStore = (*Store)(nil)
