package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pkgforge/pkgforge/internal/errs"
)

// DefaultConcurrency bounds parallel packument/tarball fan-out when a
// caller doesn't override it, matching uploader.go's Concurrency field.
const DefaultConcurrency = 8

// userAgent identifies pkgforge to the registry on every request,
// matching spec.md §6's wire protocol.
const userAgent = "pkgforge/1 (+https://github.com/pkgforge/pkgforge)"

// slimPackumentAccept asks the registry for the abbreviated packument
// form (no readme, no full per-version manifest extras) spec.md §6
// names explicitly.
const slimPackumentAccept = "application/vnd.npm.install-v1+json"

// Client is the sole door between pkgforge's resolver/placer/reifier and
// a remote npm-compatible registry. Every fetch goes through Transport so
// tests can swap in a fake, and every packument fetch is cached.
type Client struct {
	BaseURL      string
	Token        string // bearer token sent as Authorization on every request, when set
	Transport    Transport
	Cache        Cache
	TarballCache TarballCache
	Concurrency  int // bounds FetchPackumentsParallel fan-out
	// TarballConcurrency bounds FetchTarballsParallel fan-out separately
	// from Concurrency, matching spec.md §5's distinct packument/tarball
	// defaults (10 vs 5).
	TarballConcurrency int
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// NewClient wires a default backoff Transport and in-process LRU Cache.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		Transport:   NewTransport(30_000_000_000, 3),
		Cache:       NewLRUCache(512, 0),
		Concurrency: DefaultConcurrency,
	}
}

func normalizePackageName(name string) string {
	if strings.HasPrefix(name, "@") {
		parts := strings.SplitN(name, "/", 2)
		if len(parts) == 2 {
			return "@" + parts[0][1:] + "%2f" + parts[1]
		}
	}
	return name
}

func (c *Client) concurrency() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

func (c *Client) tarballConcurrency() int {
	if c.TarballConcurrency <= 0 {
		return DefaultConcurrency
	}
	return c.TarballConcurrency
}

// FetchPackument retrieves a package's full packument, serving from Cache
// when present. A 404 from the registry becomes a PackageNotFoundError;
// any other non-2xx status or transport failure becomes a RegistryError.
func (c *Client) FetchPackument(ctx context.Context, name string) (*Packument, error) {
	if c.Cache != nil {
		if p, ok := c.Cache.Get(ctx, name); ok {
			return p, nil
		}
	}

	url := fmt.Sprintf("%s/%s", c.BaseURL, normalizePackageName(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.RegistryError{Name: name, Op: "fetch packument", Err: err}
	}
	req.Header.Set("Accept", slimPackumentAccept)
	req.Header.Set("User-Agent", userAgent)
	c.authorize(req)

	resp, err := c.Transport.Do(ctx, req)
	if err != nil {
		return nil, &errs.RegistryError{Name: name, Op: "fetch packument", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &errs.PackageNotFoundError{Name: name}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errs.RegistryError{Name: name, Op: "fetch packument", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.RegistryError{Name: name, Op: "fetch packument", Err: err}
	}

	var p Packument
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &errs.RegistryError{Name: name, Op: "decode packument", Err: err}
	}
	if p.Name == "" {
		p.Name = name
	}

	if c.Cache != nil {
		c.Cache.Set(ctx, name, &p)
	}
	return &p, nil
}

// packumentResult pairs a fetch outcome with the name it was for, so
// FetchPackumentsParallel can report partial failure per spec.md §4.3:
// one missing/erroring package in a batch doesn't sink its siblings.
type packumentResult struct {
	Name      string
	Packument *Packument
	Err       error
}

// FetchPackumentsParallel fetches many packuments concurrently, bounded
// by Concurrency. Unlike tarball fan-out, a single package's failure is
// tolerated: it's reported alongside the others, not returned as a
// group-fatal error, since most callers are resolving many independent
// dependency ranges and one missing/broken package shouldn't block the
// rest from resolving.
func (c *Client) FetchPackumentsParallel(ctx context.Context, names []string) (map[string]*Packument, map[string]error) {
	results := make([]packumentResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			p, err := c.FetchPackument(gctx, name)
			results[i] = packumentResult{Name: name, Packument: p, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	packuments := make(map[string]*Packument, len(names))
	errors := make(map[string]error)
	for _, r := range results {
		if r.Err != nil {
			errors[r.Name] = r.Err
			continue
		}
		packuments[r.Name] = r.Packument
	}
	return packuments, errors
}

// FetchTarball downloads a tarball from url, serving from TarballCache
// when present. Any non-2xx status or transport failure becomes a
// RegistryError tagged with the package name for diagnostics.
func (c *Client) FetchTarball(ctx context.Context, name, url string) ([]byte, error) {
	if c.TarballCache != nil {
		if data, ok := c.TarballCache.Get(ctx, url); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.RegistryError{Name: name, Op: "fetch tarball", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	c.authorize(req)

	resp, err := c.Transport.Do(ctx, req)
	if err != nil {
		return nil, &errs.RegistryError{Name: name, Op: "fetch tarball", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errs.RegistryError{Name: name, Op: "fetch tarball", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.RegistryError{Name: name, Op: "fetch tarball", Err: err}
	}

	if c.TarballCache != nil {
		c.TarballCache.Put(ctx, url, data)
	}
	return data, nil
}

// TarballRequest names one tarball to fetch as part of a parallel batch.
// Name is an arbitrary caller-chosen key for the result map — callers
// installing more than one version of the same package in a single
// batch should key by something unique (e.g. the target Node's
// location) rather than the bare package name, since two requests
// sharing a Name would collide in FetchTarballsParallel's result map.
type TarballRequest struct {
	Name string
	URL  string
}

// FetchTarballsParallel downloads many tarballs concurrently, bounded by
// TarballConcurrency. Unlike packument fan-out, any single failure here
// is fatal to the whole batch and aborts the rest in flight: a missing
// tarball means the install can't proceed regardless of what else
// downloaded successfully, per spec.md §5's reify-phase failure rule.
func (c *Client) FetchTarballsParallel(ctx context.Context, reqs []TarballRequest) (map[string][]byte, error) {
	results := make([][]byte, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.tarballConcurrency())

	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			data, err := c.FetchTarball(gctx, r.Name, r.URL)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tarballs := make(map[string][]byte, len(reqs))
	for i, r := range reqs {
		tarballs[r.Name] = results[i]
	}
	return tarballs, nil
}
