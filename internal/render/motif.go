package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rueckwand/configurator/internal/cache"
	"github.com/rueckwand/configurator/internal/storage"
)

// Motif reference prefixes.
const (
	PrefixData  = "data:"
	PrefixMotif = "motif:"
)

var (
	// ErrUnsupportedRef is returned for references that are neither
	// http(s), data: nor motif:.
	ErrUnsupportedRef = errors.New("unsupported motif reference")
	// ErrTooLarge is returned when a remote motif exceeds the byte limit.
	ErrTooLarge = errors.New("motif exceeds size limit")
)

// MotifSource resolves a motif reference to an image.
type MotifSource interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// LoaderOptions configures a MotifLoader.
type LoaderOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	// CacheTTL bounds how long fetched remote motifs are reused.
	CacheTTL time.Duration
	Client   *http.Client
}

// MotifLoader resolves data:, motif:<id> and http(s) references. Remote
// bytes are kept in the cache so repeated exports do not refetch them.
type MotifLoader struct {
	store    storage.Store
	cache    cache.Cache
	client   *http.Client
	maxBytes int64
	ttl      time.Duration
	logger   *log.Logger
}

// NewMotifLoader creates a loader. store and c may be nil.
func NewMotifLoader(store storage.Store, c cache.Cache, opts LoaderOptions, logger *log.Logger) *MotifLoader {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &MotifLoader{
		store:    store,
		cache:    c,
		client:   client,
		maxBytes: maxBytes,
		ttl:      opts.CacheTTL,
		logger:   logger,
	}
}

// Load decodes the motif behind ref.
func (l *MotifLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	switch {
	case strings.HasPrefix(ref, PrefixData):
		data, _, err := ParseDataURI(ref)
		if err != nil {
			return nil, err
		}
		return DecodeBytes(data)

	case strings.HasPrefix(ref, PrefixMotif):
		return l.loadStored(strings.TrimPrefix(ref, PrefixMotif))

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, err := l.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		return DecodeBytes(data)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRef, truncate(ref, 40))
	}
}

func (l *MotifLoader) loadStored(id string) (image.Image, error) {
	if l.store == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrMotifNotFound, id)
	}
	rc, _, err := l.store.Open(id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Decode(rc)
}

func (l *MotifLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	key := cache.Key(cache.NamespaceMotif, url)
	if data, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		return data, nil
	} else if err != nil {
		l.logger.Warn("motif cache read failed", "err", err)
	}

	var data []byte
	err := retry(ctx, 3, 200*time.Millisecond, func() error {
		var err error
		data, err = l.get(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
		l.logger.Warn("motif cache write failed", "err", err)
	}
	l.logger.Debug("fetched motif", "url", truncate(url, 80), "bytes", len(data))
	return data, nil
}

func (l *MotifLoader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build motif request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retryable(fmt.Errorf("fetch motif: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, retryable(fmt.Errorf("fetch motif: %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch motif: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, retryable(fmt.Errorf("read motif: %w", err))
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.maxBytes)
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
