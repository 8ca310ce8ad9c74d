package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scholarlink/config"
)

const feedHeader = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>%d</opensearch:totalResults>`

func entryXML(id, version, title, published string) string {
	return fmt.Sprintf(`
  <entry>
    <id>http://arxiv.org/abs/%s%s</id>
    <title>%s</title>
    <summary>Ein Abstract.</summary>
    <published>%s</published>
    <updated>%s</updated>
    <author><name>Alice Example</name></author>
    <author><name>Bob Example</name></author>
    <link href="http://arxiv.org/abs/%s%s" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/%s%s" rel="related" type="application/pdf" title="pdf"/>
    <category term="cs.LG"/>
    <category term="cs.AI"/>
    <arxiv:primary_category term="cs.LG"/>
    <arxiv:comment>12 pages</arxiv:comment>
  </entry>`, id, version, title, published, published, id, version, id, version)
}

func feedWith(entries ...string) string {
	body := fmt.Sprintf(feedHeader, len(entries))
	for _, e := range entries {
		body += e
	}
	return body + "\n</feed>"
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &config.Config{
		ArxivBaseURL:   baseURL,
		ArxivQuery:     "cat:cs.*",
		ArxivPageSize:  100,
		ArxivPaceDelay: 0,
	}
	return NewClient(cfg, zap.NewNop())
}

func serveFeeds(t *testing.T, feeds ...string) *httptest.Server {
	t.Helper()
	var call int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := feeds[len(feeds)-1]
		if call < len(feeds) {
			body = feeds[call]
		}
		call++
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func window() (time.Time, time.Time) {
	end := time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC)
	return end.Add(-24 * time.Hour), end
}

func TestFetchMapsRecords(t *testing.T) {
	srv := serveFeeds(t, feedWith(
		entryXML("2408.00001", "v1", "Paper A", "2025-08-28T10:00:00Z"),
		entryXML("2408.00002", "v3", "Paper B", "2025-08-28T09:00:00Z"),
	))
	client := testClient(t, srv.URL)

	start, end := window()
	result, err := client.Fetch(context.Background(), start, end, 0)

	require.NoError(t, err)
	assert.Equal(t, 0, result.ParseFailures)
	require.Len(t, result.Records, 2)

	first := result.Records[0]
	assert.Equal(t, "2408.00001", first.ArxivID)
	assert.Equal(t, "Paper A", first.Title)
	assert.Equal(t, []string{"Alice Example", "Bob Example"}, first.Authors)
	assert.Equal(t, []string{"cs.LG", "cs.AI"}, first.Categories)
	assert.Equal(t, "cs.LG", first.PrimaryCategory)
	assert.Equal(t, "http://arxiv.org/pdf/2408.00001v1", first.PDFURL)
	assert.Equal(t, "Ein Abstract.", first.Abstract)
	assert.Equal(t, "12 pages", first.Comment)
	assert.Equal(t, time.Date(2025, 8, 28, 10, 0, 0, 0, time.UTC), first.Published)
}

func TestFetchDedupePoolAcrossCalls(t *testing.T) {
	srv := serveFeeds(t,
		feedWith(entryXML("2408.00001", "v1", "Paper A", "2025-08-28T10:00:00Z")),
		feedWith(
			// gleiche ID mit anderer Version: muss als Duplikat erkannt werden
			entryXML("2408.00001", "v2", "Paper A", "2025-08-28T10:00:00Z"),
			entryXML("2408.00002", "v1", "Paper B", "2025-08-28T09:00:00Z"),
		),
	)
	client := testClient(t, srv.URL)
	start, end := window()

	first, err := client.Fetch(context.Background(), start, end, 0)
	require.NoError(t, err)
	require.Len(t, first.Records, 1)

	second, err := client.Fetch(context.Background(), start, end, 0)
	require.NoError(t, err)
	require.Len(t, second.Records, 1)
	assert.Equal(t, "2408.00002", second.Records[0].ArxivID)
}

func TestFetchCountsParseFailures(t *testing.T) {
	srv := serveFeeds(t, feedWith(
		entryXML("2408.00001", "v1", "Paper A", "2025-08-28T10:00:00Z"),
		entryXML("2408.00002", "v1", "Paper B", "kein-datum"),
		entryXML("2408.00003", "v1", "", "2025-08-28T08:00:00Z"),
		entryXML("2408.00004", "v1", "Paper D", "2025-08-28T07:00:00Z"),
	))
	client := testClient(t, srv.URL)
	start, end := window()

	result, err := client.Fetch(context.Background(), start, end, 0)

	// Einzelne kaputte Einträge brechen den Batch nicht ab
	require.NoError(t, err)
	assert.Equal(t, 2, result.ParseFailures)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "2408.00001", result.Records[0].ArxivID)
	assert.Equal(t, "2408.00004", result.Records[1].ArxivID)
}

func TestFetchMaxResultsCap(t *testing.T) {
	srv := serveFeeds(t, feedWith(
		entryXML("2408.00001", "v1", "Paper A", "2025-08-28T10:00:00Z"),
		entryXML("2408.00002", "v1", "Paper B", "2025-08-28T09:00:00Z"),
		entryXML("2408.00003", "v1", "Paper C", "2025-08-28T08:00:00Z"),
	))
	client := testClient(t, srv.URL)
	start, end := window()

	result, err := client.Fetch(context.Background(), start, end, 2)

	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
}

func TestFetchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := testClient(t, srv.URL)
	start, end := window()

	_, err := client.Fetch(context.Background(), start, end, 0)
	require.Error(t, err)
}

func TestFetchEmptyWindow(t *testing.T) {
	srv := serveFeeds(t, feedWith())
	client := testClient(t, srv.URL)
	start, end := window()

	result, err := client.Fetch(context.Background(), start, end, 0)

	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.ParseFailures)
}

func TestStripVersion(t *testing.T) {
	cases := map[string]string{
		"http://arxiv.org/abs/2408.00001v2":       "2408.00001",
		"http://arxiv.org/abs/2408.00001":         "2408.00001",
		"http://arxiv.org/abs/cond-mat/0001001v3": "cond-mat/0001001",
		"2408.00001v12":                           "2408.00001",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripVersion(in), in)
	}
}

func TestDefaultWindow(t *testing.T) {
	start, end := DefaultWindow()
	assert.Equal(t, 24*time.Hour, end.Sub(start))
	assert.True(t, time.Now().UTC().Sub(end) >= 23*time.Hour)
}
