package renderer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/parser"
	"post-digest/renderer"
)

var _ parser.Renderer = (*renderer.ChromeRenderer)(nil)

func TestRenderHTML(t *testing.T) {
	r := renderer.New("", "")
	if !r.Available() {
		t.Skip("chromium not installed")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="root"></div><script>document.getElementById("root").textContent = "rendered by js";</script></body></html>`))
	}))
	defer srv.Close()

	html, err := r.RenderHTML(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "rendered by js")
}

func TestNewFallsBackToEnv(t *testing.T) {
	t.Setenv("CHROME_PATH", "/nonexistent/chrome")
	assert.False(t, renderer.New("", "").Available())
}
