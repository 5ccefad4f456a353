package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCookies(t *testing.T) {
	cookies := ParseCookies(" session=abc ; token = x=y ;broken; ")
	require.Len(t, cookies, 2)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.Equal(t, "token", cookies[1].Name)
	assert.Equal(t, "x=y", cookies[1].Value)
	assert.Empty(t, ParseCookies(""))
}

func TestFetchDocumentSendsCookieAndUserAgent(t *testing.T) {
	var gotCookie, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte(`<html><body><div class="question"><p>Hello quiz</p></div></body></html>`))
	}))
	defer srv.Close()

	f, err := NewFetcher("session=abc123")
	require.NoError(t, err)

	doc, err := f.FetchDocument(context.Background(), srv.URL+"/quiz")
	require.NoError(t, err)
	assert.Equal(t, "Hello quiz", doc.Find(".question p").Text())
	assert.Equal(t, "abc123", gotCookie)
	assert.Equal(t, UserAgent, gotUA)
}

func TestFetchDocumentNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f, err := NewFetcher("")
	require.NoError(t, err)
	_, err = f.FetchDocument(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body><h2>` + r.URL.Path + `</h2></body></html>`))
	}))
	defer srv.Close()

	f, err := NewFetcher("")
	require.NoError(t, err)
	f.MinDelay, f.MaxDelay = 0, 0

	pages := f.FetchAll(context.Background(), []string{srv.URL + "/a", srv.URL + "/missing", srv.URL + "/b"})
	require.Len(t, pages, 3)
	require.NoError(t, pages[0].Err)
	assert.Equal(t, "/a", pages[0].Doc.Find("h2").Text())
	assert.Error(t, pages[1].Err)
	assert.Equal(t, "/b", pages[2].Doc.Find("h2").Text())
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<html><body><p id="x">saved</p></body></html>`), 0o600))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", doc.Find("#x").Text())

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}
