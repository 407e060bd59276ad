package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/pkgforge/internal/errs"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &Client{
		BaseURL:     srv.URL,
		Transport:   NewTransport(5*time.Second, 2),
		Cache:       NewLRUCache(16, 0),
		Concurrency: 4,
	}
}

func TestFetchPackumentDecodesAndCaches(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"left-pad","dist-tags":{"latest":"1.3.0"},"versions":{"1.3.0":{"name":"left-pad","version":"1.3.0"}}}`))
	})

	p, err := client.FetchPackument(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.Equal(t, "left-pad", p.Name)
	assert.Equal(t, "1.3.0", p.DistTags["latest"])

	_, err = client.FetchPackument(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second fetch should be served from cache")
}

func TestFetchPackumentNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchPackument(context.Background(), "nope")
	require.Error(t, err)
	var notFound *errs.PackageNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.Name)
}

func TestFetchPackumentServerErrorBecomesRegistryError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client.Transport = NewTransport(2*time.Second, 1)

	_, err := client.FetchPackument(context.Background(), "flaky")
	require.Error(t, err)
	var regErr *errs.RegistryError
	assert.ErrorAs(t, err, &regErr)
}

func TestFetchPackumentsParallelTolerantOfPartialFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing-pkg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"ok-pkg","dist-tags":{"latest":"1.0.0"},"versions":{"1.0.0":{"name":"ok-pkg","version":"1.0.0"}}}`))
	})

	packuments, errs := client.FetchPackumentsParallel(context.Background(), []string{"ok-pkg", "missing-pkg"})
	assert.Len(t, packuments, 1)
	assert.Contains(t, packuments, "ok-pkg")
	assert.Len(t, errs, 1)
	assert.Contains(t, errs, "missing-pkg")
}

func TestFetchTarballCachesByURL(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("tarball-bytes"))
	})
	client.TarballCache = NewDiskTarballCache(afero.NewMemMapFs(), "/cache")

	url := client.BaseURL + "/left-pad/-/left-pad-1.3.0.tgz"
	data, err := client.FetchTarball(context.Background(), "left-pad", url)
	require.NoError(t, err)
	assert.Equal(t, "tarball-bytes", string(data))

	_, err = client.FetchTarball(context.Background(), "left-pad", url)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second fetch should be served from the tarball cache")
}

func TestFetchTarballsParallelFailsFastOnAnyError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.tgz" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("bytes"))
	})
	client.Transport = NewTransport(2*time.Second, 1)

	reqs := []TarballRequest{
		{Name: "good", URL: client.BaseURL + "/good.tgz"},
		{Name: "bad", URL: client.BaseURL + "/bad.tgz"},
	}
	_, err := client.FetchTarballsParallel(context.Background(), reqs)
	assert.Error(t, err)
}

func TestNormalizePackageNameEscapesScopedSlash(t *testing.T) {
	assert.Equal(t, "@scope%2fname", normalizePackageName("@scope/name"))
	assert.Equal(t, "left-pad", normalizePackageName("left-pad"))
}

func TestFetchPackumentSendsSlimAcceptAndUserAgent(t *testing.T) {
	var gotAccept, gotUA string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"name":"left-pad","dist-tags":{"latest":"1.3.0"},"versions":{"1.3.0":{"name":"left-pad","version":"1.3.0"}}}`))
	})

	_, err := client.FetchPackument(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.Equal(t, slimPackumentAccept, gotAccept)
	assert.Equal(t, userAgent, gotUA)
}

func TestFetchPackumentSendsBearerTokenWhenSet(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"name":"left-pad","dist-tags":{"latest":"1.3.0"},"versions":{"1.3.0":{"name":"left-pad","version":"1.3.0"}}}`))
	})
	client.Token = "s3cr3t"

	_, err := client.FetchPackument(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cr3t", gotAuth)
}

func TestFetchPackumentOmitsAuthorizationWhenTokenUnset(t *testing.T) {
	var sawAuth bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		w.Write([]byte(`{"name":"left-pad","dist-tags":{"latest":"1.3.0"},"versions":{"1.3.0":{"name":"left-pad","version":"1.3.0"}}}`))
	})

	_, err := client.FetchPackument(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.False(t, sawAuth)
}

func TestFetchTarballSendsUserAgentAndBearerToken(t *testing.T) {
	var gotUA, gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("tarball-bytes"))
	})
	client.Token = "s3cr3t"

	_, err := client.FetchTarball(context.Background(), "left-pad", client.BaseURL+"/left-pad.tgz")
	require.NoError(t, err)
	assert.Equal(t, userAgent, gotUA)
	assert.Equal(t, "Bearer s3cr3t", gotAuth)
}
