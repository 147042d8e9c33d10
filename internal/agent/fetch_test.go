package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLocalFetcher skips the URL guard so tests can hit httptest servers,
// which listen on the loopback address the guard blocks.
func newLocalFetcher() *Fetcher {
	f := NewFetcher()
	f.validate = func(string) error { return nil }
	return f
}

func TestFetchPage_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetchUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<html><head><style>body{color:red}</style></head>
<body><script>var x = 1;</script><h1>Acme   Plumbing</h1><p>Serving Springfield since 2005.</p></body></html>`))
	}))
	defer srv.Close()

	f := newLocalFetcher()
	res := f.FetchPage(context.Background(), srv.URL)

	assert.Equal(t, "Acme Plumbing Serving Springfield since 2005.", res.Content)
	assert.True(t, HasContent(res.Content))
}

func TestFetchPage_TimeoutReturnsPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("too late"))
	}))
	defer srv.Close()

	f := newLocalFetcher()
	f.http = &http.Client{Timeout: 50 * time.Millisecond}
	res := f.FetchPage(context.Background(), srv.URL)

	assert.True(t, strings.HasPrefix(res.Content, failedFetchPrefix))
	assert.Empty(t, res.DiscoveredLinks)
	assert.False(t, HasContent(res.Content))
}

func TestFetchPage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newLocalFetcher()
	res := f.FetchPage(context.Background(), srv.URL)

	assert.Equal(t, "[Failed to fetch: HTTP 503]", res.Content)
}

func TestFetchPage_GuardRejection(t *testing.T) {
	f := NewFetcher()
	res := f.FetchPage(context.Background(), "http://192.168.1.1/admin")

	assert.True(t, strings.HasPrefix(res.Content, failedFetchPrefix))
}

func TestFetchPage_EmptyPageSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><script>only();</script></body></html>"))
	}))
	defer srv.Close()

	f := newLocalFetcher()
	res := f.FetchPage(context.Background(), srv.URL)

	assert.Equal(t, emptyPageContent, res.Content)
	assert.False(t, HasContent(res.Content))
}

func TestCleanHTML_TruncatesToBudget(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 2000)
	cleaned := cleanHTML("<p>" + long + "</p>")
	assert.Len(t, cleaned, contentBudget)
}

func TestExtractSocialLinks_RecognizedDomainsOnly(t *testing.T) {
	html := `<html><body>
<a href="https://www.facebook.com/acme/">Facebook</a>
<a href="https://acme.com/about">About us</a>
<a href="https://unknown-domain.xyz">Partner</a>
</body></html>`

	links := extractSocialLinks(html, "acme.com")
	require.Len(t, links, 1)
	assert.Equal(t, "Facebook", links[0].Platform)
	assert.Equal(t, "https://www.facebook.com/acme", links[0].URL)
}

func TestExtractSocialLinks_Dedupe(t *testing.T) {
	html := `<a href="https://yelp.com/biz/acme">one</a>
<a href="https://yelp.com/biz/acme/">two</a>
<a href='https://instagram.com/acme'>ig</a>`

	links := extractSocialLinks(html, "acme.com")
	require.Len(t, links, 2)
	assert.Equal(t, "Yelp", links[0].Platform)
	assert.Equal(t, "Instagram", links[1].Platform)
}

func TestExtractSocialLinks_RelativeAndSubdomain(t *testing.T) {
	html := `<a href="/contact">Contact</a>
<a href="https://business.google.com/acme">GBP</a>
<a href="mailto:hi@acme.com">Mail</a>`

	links := extractSocialLinks(html, "www.acme.com")
	require.Len(t, links, 1)
	assert.Equal(t, "Google Business", links[0].Platform)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// "é" is two bytes; a byte-5 cut would land mid-rune.
	s := strings.Repeat("é", 5)
	got := truncate(s, 5)
	assert.Equal(t, strings.Repeat("é", 2), got)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "abc", truncate("abc", 8))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "", truncate("語", 1))
}

func TestCleanHTML_BudgetKeepsValidUTF8(t *testing.T) {
	page := "<p>" + strings.Repeat("日本語テキスト", contentBudget/6) + "</p>"
	got := cleanHTML(page)
	assert.LessOrEqual(t, len(got), contentBudget)
	assert.True(t, utf8.ValidString(got))
}

func TestMatchSocialDomain(t *testing.T) {
	assert.Equal(t, "Facebook", matchSocialDomain("facebook.com"))
	assert.Equal(t, "Facebook", matchSocialDomain("m.facebook.com"))
	assert.Equal(t, "Twitter", matchSocialDomain("x.com"))
	assert.Equal(t, "", matchSocialDomain("notfacebook.com"))
	assert.Equal(t, "", matchSocialDomain("facebook.com.evil.xyz"))
}
