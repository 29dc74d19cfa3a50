package testutil

import (
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// Document reads and parses an HTML response body, closing it.
func Document(t testing.TB, resp *http.Response) *goquery.Document {
	t.Helper()

	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err, "parse html")
	return doc
}

// Text returns the trimmed text of every node matched by selector.
func Text(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).Text())
}
