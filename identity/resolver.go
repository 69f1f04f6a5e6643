// Package identity decides which storage key a page's overlays live under.
// Most pages use their full URL. youtube.com watch pages use the channel
// instead, so every video of one channel shares presets.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"mosaic-keeper/metrics"
)

// ErrKeyResolutionTimeout means channel extraction gave up after the last
// retry. ResolveKey recovers from it by falling back to the URL.
var ErrKeyResolutionTimeout = errors.New("channel key resolution exhausted retries")

// VideoDomain is the host channel keys are filed under.
const VideoDomain = "youtube.com"

var videoHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"m.youtube.com":   true,
}

// DOMAccessor gives read access to the page's current document. It is only
// available when resolution runs with access to the page itself.
type DOMAccessor interface {
	Document(ctx context.Context) (*html.Node, error)
}

// DOMFunc adapts a function to DOMAccessor.
type DOMFunc func(ctx context.Context) (*html.Node, error)

func (f DOMFunc) Document(ctx context.Context) (*html.Node, error) { return f(ctx) }

// StaticDocument parses src once and serves it on every call.
func StaticDocument(src string) (DOMAccessor, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	return DOMFunc(func(context.Context) (*html.Node, error) { return doc, nil }), nil
}

// RetryPolicy bounds channel extraction: one attempt plus Retries more,
// Delay apart.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

var DefaultRetry = RetryPolicy{Retries: 3, Delay: 750 * time.Millisecond}

// Resolver maps navigation URLs to storage keys.
type Resolver struct {
	retry      RetryPolicy
	extractors []Extractor
	log        *slog.Logger
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Resolver)

func WithRetry(p RetryPolicy) Option { return func(r *Resolver) { r.retry = p } }

func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Resolver) { r.metrics = m } }

// WithExtractors replaces the default extractor chain.
func WithExtractors(ex ...Extractor) Option { return func(r *Resolver) { r.extractors = ex } }

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		retry:      DefaultRetry,
		extractors: DefaultExtractors(),
		log:        slog.Default(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(slog.String("component", "identity"))
	return r
}

// ResolveKey returns the storage key for navURL. dom may be nil when the
// caller has no page access, in which case watch pages fall back to their
// URL. ResolveKey never fails; it has no side effects beyond reading dom.
func (r *Resolver) ResolveKey(ctx context.Context, navURL string, dom DOMAccessor) string {
	if !IsVideoWatch(navURL) {
		return navURL
	}
	if dom == nil {
		r.metrics.Resolution("no_dom")
		return navURL
	}
	key, err := r.resolveChannel(ctx, dom)
	if err != nil {
		r.log.Debug("channel key unavailable, using url", slog.String("url", navURL), slog.Any("err", err))
		r.metrics.Resolution("fallback")
		return navURL
	}
	r.metrics.Resolution("channel")
	return key
}

func (r *Resolver) resolveChannel(ctx context.Context, dom DOMAccessor) (string, error) {
	attempts := r.retry.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := r.sleep(ctx, r.retry.Delay); err != nil {
				return "", err
			}
		}
		doc, err := dom.Document(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if key, ok := r.extract(doc, i+1); ok {
			return key, nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w after %d attempts: %w", ErrKeyResolutionTimeout, attempts, lastErr)
	}
	return "", fmt.Errorf("%w after %d attempts", ErrKeyResolutionTimeout, attempts)
}

func (r *Resolver) extract(doc *html.Node, attempt int) (string, bool) {
	if doc == nil {
		return "", false
	}
	for _, ex := range r.extractors {
		if key, ok := ex.Extract(doc); ok {
			r.log.Debug("channel key resolved",
				slog.String("extractor", ex.Name()),
				slog.Int("attempt", attempt),
				slog.String("key", key))
			return key, true
		}
	}
	return "", false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsVideoWatch reports whether rawURL is a youtube.com watch page.
func IsVideoWatch(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return videoHosts[strings.ToLower(u.Hostname())] && u.Path == "/watch"
}
