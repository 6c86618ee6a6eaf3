package pac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolkispalkis/hostproxy/pkg/proxy"
)

type outcome struct {
	candidates []proxy.Descriptor
	err        error
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	x := NewExecutor(NewFetcher(), newTestEngine(t, newFakeResolver(nil)))
	t.Cleanup(x.Close)
	return x
}

func TestExecutorDeliversCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`function FindProxyForURL(url, host) {
	if (host == "example.com") return "PROXY proxy.example.com:8080; DIRECT";
	return "DIRECT";
}`))
	}))
	defer srv.Close()

	x := newTestExecutor(t)
	results := make(chan outcome, 1)
	cancel := x.Execute(context.Background(), mustParse(t, srv.URL+"/proxy.pac"), mustParse(t, "http://example.com/index.html"),
		func(c []proxy.Descriptor, err error) { results <- outcome{c, err} })
	defer cancel()

	select {
	case out := <-results:
		require.NoError(t, out.err)
		assert.Equal(t, []proxy.Descriptor{
			{Type: proxy.DescriptorHTTP, Host: "proxy.example.com", Port: 8080},
			{Type: proxy.DescriptorDirect},
		}, out.candidates)
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not report")
	}
}

func TestExecutorReportsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.pac" {
			_, _ = w.Write([]byte(`function FindProxyForURL(url, host) { return nope(); }`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	x := newTestExecutor(t)
	for _, path := range []string{"/broken.pac", "/500.pac"} {
		results := make(chan outcome, 1)
		cancel := x.Execute(context.Background(), mustParse(t, srv.URL+path), mustParse(t, "http://example.com/"),
			func(c []proxy.Descriptor, err error) { results <- outcome{c, err} })

		select {
		case out := <-results:
			assert.Error(t, out.err, path)
			assert.Nil(t, out.candidates, path)
		case <-time.After(5 * time.Second):
			t.Fatal("executor did not report", path)
		}
		cancel()
	}
}

func TestExecutorNoCallbackAfterCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(directScript))
	}))
	defer srv.Close()
	defer close(release)

	x := newTestExecutor(t)
	called := make(chan struct{}, 1)
	cancel := x.Execute(context.Background(), mustParse(t, srv.URL+"/slow.pac"), mustParse(t, "http://example.com/"),
		func([]proxy.Descriptor, error) { called <- struct{}{} })
	cancel()

	assert.Never(t, func() bool { return len(called) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
}
