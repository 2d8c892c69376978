package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPFetchBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>Hello from test server</p></body></html>"))
	}))
	defer srv.Close()

	pack := NewPack()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	out, err := pack.Tools[0].Invoke(context.Background(), args)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.NotEmpty(t, out.Content)
}

func TestHTTPFetch404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()

	pack := NewPack()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	out, err := pack.Tools[0].Invoke(context.Background(), args)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.NotEmpty(t, out.Error)
}

func TestHTTPFetchTruncation(t *testing.T) {
	bigContent := make([]byte, 10000)
	for i := range bigContent {
		bigContent[i] = 'A'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bigContent)
	}))
	defer srv.Close()

	pack := NewPack()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	out, err := pack.Tools[0].Invoke(context.Background(), args)
	require.NoError(t, err)
	require.LessOrEqual(t, len(out.Content), 8100)
}

func TestHTTPFetchInvalidInput(t *testing.T) {
	pack := NewPack()
	out, err := pack.Tools[0].Invoke(context.Background(), json.RawMessage(`not json`))
	require.NoError(t, err)
	require.False(t, out.Success)
}
