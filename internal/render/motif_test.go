package render

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rueckwand/configurator/internal/cache"
	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/storage"
	"github.com/rueckwand/configurator/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURI(t *testing.T) {
	data, mt, err := ParseDataURI("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "image/png", mt)

	data, mt, err = ParseDataURI("data:,a%20b")
	require.NoError(t, err)
	assert.Equal(t, "a b", string(data))
	assert.Equal(t, "text/plain", mt)

	for _, bad := range []string{"http://x", "data:image/png;base64", "data:;base64,***"} {
		_, _, err := ParseDataURI(bad)
		assert.ErrorIs(t, err, ErrBadDataURI, bad)
	}
}

func TestMotifLoader_DataURI(t *testing.T) {
	l := NewMotifLoader(nil, nil, LoaderOptions{}, nil)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.PNG(testutil.Gradient(8, 4)))

	img, err := l.Load(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())

	_, err = l.Load(context.Background(), "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("nope")))
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestMotifLoader_Stored(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("abc", models.FileInfo{Name: "m.png"}, testutil.PNG(testutil.Gradient(5, 3)))
	l := NewMotifLoader(store, nil, LoaderOptions{}, nil)

	img, err := l.Load(context.Background(), "motif:abc")
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())

	_, err = l.Load(context.Background(), "motif:missing")
	assert.ErrorIs(t, err, storage.ErrMotifNotFound)
}

func TestMotifLoader_HTTP(t *testing.T) {
	body := testutil.PNG(testutil.Gradient(6, 6))
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch r.URL.Path {
		case "/flaky.png":
			if n == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
		case "/missing.png":
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	l := NewMotifLoader(nil, c, LoaderOptions{}, nil)
	ctx := context.Background()

	img, err := l.Load(ctx, srv.URL+"/flaky.png")
	require.NoError(t, err, "5xx is retried")
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, int32(2), calls.Load())

	_, err = l.Load(ctx, srv.URL+"/flaky.png")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "second load served from cache")

	_, err = l.Load(ctx, srv.URL+"/missing.png")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "4xx is not retried")
}

func TestMotifLoader_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	l := NewMotifLoader(nil, nil, LoaderOptions{MaxBytes: 1024}, nil)
	_, err := l.Load(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestMotifLoader_Unsupported(t *testing.T) {
	l := NewMotifLoader(nil, nil, LoaderOptions{}, nil)
	for _, ref := range []string{"", "ftp://x/y.png", "/etc/passwd"} {
		_, err := l.Load(context.Background(), ref)
		assert.True(t, errors.Is(err, ErrUnsupportedRef), ref)
	}
}
