package store

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Transaction attempts before giving up. Conflicts beyond this mean the key is
// far too hot for optimistic concurrency and backing off is pointless.
const maxTxnAttempts = 10

// REST talks to the remote aggregate store over its JSON REST surface. Tree
// paths map to "<base>/<path>.json"; transactions use ETag fetch plus
// conditional PUT.
type REST struct {
	base   string
	client *http.Client
	log    *zap.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewREST builds a REST store client rooted at base (e.g.
// "https://store.example.com/v1"). A nil client uses a 10 s default.
func NewREST(base string, client *http.Client, log *zap.Logger) *REST {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &REST{
		base:    strings.TrimRight(base, "/"),
		client:  client,
		log:     log,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (r *REST) endpoint(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return r.base + "/" + strings.Join(segs, "/") + ".json"
}

func (r *REST) do(ctx context.Context, method, path string, body Value, hdr http.Header) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.endpoint(path), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	return resp, nil
}

// checkStatus drains and closes the response, mapping non-2xx to
// ErrUnavailable. 404 is not an error at this layer; Get handles it.
func checkStatus(resp *http.Response, method, path string) error {
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
}

func (r *REST) Get(ctx context.Context, path string) (Value, error) {
	v, _, err := r.get(ctx, path, false)
	return v, err
}

func (r *REST) get(ctx context.Context, path string, wantETag bool) (Value, string, error) {
	hdr := http.Header{}
	if wantETag {
		hdr.Set("X-Store-ETag", "true")
	}
	resp, err := r.do(ctx, http.MethodGet, path, nil, hdr)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.Header.Get("ETag"), nil
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("%w: GET %s: status %d", ErrUnavailable, path, resp.StatusCode)
	}
	var v Value
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, "", fmt.Errorf("%w: GET %s: decode: %v", ErrUnavailable, path, err)
	}
	return v, resp.Header.Get("ETag"), nil
}

func (r *REST) Set(ctx context.Context, path string, v Value) error {
	resp, err := r.do(ctx, http.MethodPut, path, v, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodPut, path)
}

func (r *REST) Update(ctx context.Context, path string, fields map[string]Value) error {
	resp, err := r.do(ctx, http.MethodPatch, path, fields, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodPatch, path)
}

func (r *REST) Delete(ctx context.Context, path string) error {
	resp, err := r.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodDelete, path)
}

func (r *REST) Push(ctx context.Context, path string, v Value) (string, error) {
	r.mu.Lock()
	key := ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
	r.mu.Unlock()
	if err := r.Set(ctx, path+"/"+key, v); err != nil {
		return "", err
	}
	return key, nil
}

func (r *REST) Increment(ctx context.Context, path string, delta int64) error {
	// Server-value increment: applied atomically store-side, so concurrent
	// writers commute.
	body := map[string]Value{".sv": map[string]Value{"increment": delta}}
	resp, err := r.do(ctx, http.MethodPut, path, body, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodPut, path)
}

func (r *REST) Transact(ctx context.Context, path string, fn TxnFunc) error {
	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		current, etag, err := r.get(ctx, path, true)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		hdr := http.Header{}
		hdr.Set("If-Match", etag)
		resp, err := r.do(ctx, http.MethodPut, path, next, hdr)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusPreconditionFailed {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			r.log.Debug("transaction conflict, retrying",
				zap.String("path", path), zap.Int("attempt", attempt))
			continue
		}
		return checkStatus(resp, http.MethodPut, path)
	}
	return fmt.Errorf("%w: transaction on %s: conflict budget exhausted", ErrUnavailable, path)
}
