package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTSetAndGet(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"active"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	st := NewREST(srv.URL, srv.Client(), nil)

	require.NoError(t, st.Set(ctx, "sessions/s1", map[string]Value{"status": "active"}))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/sessions/s1.json", gotPath)
	assert.JSONEq(t, `{"status":"active"}`, string(gotBody))

	v, err := st.Get(ctx, "sessions/s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"status": "active"}, v)
}

func TestRESTGetAbsentIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	v, err := NewREST(srv.URL, srv.Client(), nil).Get(context.Background(), "sessions/nope")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRESTIncrementSendsServerValue(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewREST(srv.URL, srv.Client(), nil).Increment(context.Background(), "tool_views/calc/total", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{".sv":{"increment":1}}`, string(gotBody))
}

// The transaction loop must refetch and retry after a conditional-write
// conflict, and the computed value must be based on the refetched state.
func TestRESTTransactRetriesOnConflict(t *testing.T) {
	var mu sync.Mutex
	value := 5
	etag := "v1"
	conflictsLeft := 2

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("ETag", etag)
			fmt.Fprintf(w, "%d", value)
		case http.MethodPut:
			if r.Header.Get("If-Match") != etag || conflictsLeft > 0 {
				// Simulate a concurrent writer landing first.
				conflictsLeft--
				value++
				etag = fmt.Sprintf("v%d", value)
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			var v float64
			json.NewDecoder(r.Body).Decode(&v)
			value = int(v)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	attempts := 0
	err := NewREST(srv.URL, srv.Client(), nil).Transact(context.Background(), "daily_pages/2026-08-26/index", func(current Value) (Value, error) {
		attempts++
		return AsInt64(current) + 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 8, value) // 5, two simulated conflicts, then 7+1
}

func TestRESTTransactGivesUpAfterBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("ETag", "x")
			w.Write([]byte(`0`))
			return
		}
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	err := NewREST(srv.URL, srv.Client(), nil).Transact(context.Background(), "k", func(current Value) (Value, error) {
		return AsInt64(current) + 1, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestRESTServerErrorsMapToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	st := NewREST(srv.URL, srv.Client(), nil)
	err := st.Set(context.Background(), "sessions/s1", "x")
	assert.True(t, errors.Is(err, ErrUnavailable))
	_, err = st.Get(context.Background(), "sessions/s1")
	assert.True(t, errors.Is(err, ErrUnavailable))
}
