package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-alert-service/internal/papersources"
)

const esearchTwoIDs = `<?xml version="1.0" encoding="UTF-8"?>
<eSearchResult>
  <Count>2</Count>
  <RetMax>2</RetMax>
  <RetStart>0</RetStart>
  <IdList>
    <Id>38000001</Id>
    <Id>38000002</Id>
  </IdList>
</eSearchResult>`

const esearchEmpty = `<?xml version="1.0" encoding="UTF-8"?>
<eSearchResult>
  <Count>0</Count>
  <RetMax>0</RetMax>
  <RetStart>0</RetStart>
  <IdList/>
  <ErrorList>
    <PhraseNotFound>nonexistentterm</PhraseNotFound>
  </ErrorList>
</eSearchResult>`

const efetchTwoArticles = `<?xml version="1.0" encoding="UTF-8"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">38000001</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate><Year>2025</Year><Month>Jun</Month><Day>15</Day></PubDate>
          </JournalIssue>
          <Title>Nature Medicine</Title>
        </Journal>
        <ArticleTitle>CRISPR base editing corrects a pathogenic variant</ArticleTitle>
        <ELocationID EIdType="doi" ValidYN="Y">10.1038/S41591-025-00001-1</ELocationID>
        <Abstract>
          <AbstractText Label="BACKGROUND">Base editing enables precise correction.</AbstractText>
          <AbstractText Label="RESULTS">The variant was corrected in vivo.</AbstractText>
        </Abstract>
        <PublicationTypeList>
          <PublicationType UI="D016428">Journal Article</PublicationType>
        </PublicationTypeList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">38000001</ArticleId>
        <ArticleId IdType="doi">10.1038/s41591-025-00001-1</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">38000002</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate><Year>2025</Year><Month>Jul</Month></PubDate>
          </JournalIssue>
          <Title>Cell</Title>
        </Journal>
        <ArticleTitle>Single-cell atlas of tumor microenvironments</ArticleTitle>
        <PublicationTypeList>
          <PublicationType UI="D016428">Journal Article</PublicationType>
          <PublicationType UI="D016454">Review</PublicationType>
        </PublicationTypeList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">38000002</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

func newTestServer(t *testing.T, esearchBody, efetchBody string, captured *[]url.Values) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = append(*captured, r.URL.Query())
		}
		w.Header().Set("Content-Type", "text/xml")
		switch r.URL.Path {
		case "/esearch.fcgi":
			fmt.Fprint(w, esearchBody)
		case "/efetch.fcgi":
			fmt.Fprint(w, efetchBody)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newClientFor(serverURL string) *Client {
	return NewWithHTTPClient(
		Config{BaseURL: serverURL, MaxResults: 100},
		papersources.NewHTTPClient(papersources.HTTPClientConfig{
			MinInterval: time.Millisecond,
			MaxRetries:  2,
			RetryDelay:  time.Millisecond,
		}),
	)
}

func TestSearchReturnsPapers(t *testing.T) {
	server := newTestServer(t, esearchTwoIDs, efetchTwoArticles, nil)
	defer server.Close()

	client := newClientFor(server.URL)
	papers, err := client.Search(context.Background(), papersources.SearchParams{
		Query: `("CRISPR-Cas Systems"[Mesh])`,
	})
	require.NoError(t, err)
	require.Len(t, papers, 2)

	first := papers[0]
	assert.Equal(t, "38000001", first.PMID)
	assert.Equal(t, "10.1038/s41591-025-00001-1", first.DOI)
	assert.Equal(t, "CRISPR base editing corrects a pathogenic variant", first.Title)
	assert.Equal(t, "Nature Medicine", first.Journal)
	require.NotNil(t, first.Abstract)
	assert.Equal(t, "BACKGROUND: Base editing enables precise correction. RESULTS: The variant was corrected in vivo.", *first.Abstract)
	require.NotNil(t, first.PublishedDate)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), *first.PublishedDate)
	assert.Equal(t, []string{"Journal Article"}, first.ArticleTypes)

	second := papers[1]
	assert.Equal(t, "38000002", second.PMID)
	assert.Empty(t, second.DOI)
	assert.Nil(t, second.Abstract, "missing abstract must stay nil")
	assert.Equal(t, []string{"Journal Article", "Review"}, second.ArticleTypes)
}

func TestSearchQueryConstruction(t *testing.T) {
	var queries []url.Values
	server := newTestServer(t, esearchEmpty, "", &queries)
	defer server.Close()

	client := newClientFor(server.URL)
	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	_, err := client.Search(context.Background(), papersources.SearchParams{
		Query:        `("Immunotherapy"[Mesh])`,
		Window:       papersources.SearchWindow{From: from, To: to},
		ArticleTypes: []string{"Journal Article", "Review"},
	})
	require.NoError(t, err)
	require.Len(t, queries, 1)

	q := queries[0]
	assert.Equal(t, "pubmed", q.Get("db"))
	assert.Equal(t, `(("Immunotherapy"[Mesh])) AND ("Journal Article"[pt] OR "Review"[pt])`, q.Get("term"))
	assert.Equal(t, "pdat", q.Get("datetype"))
	assert.Equal(t, "2025/04/01", q.Get("mindate"))
	assert.Equal(t, "2025/06/30", q.Get("maxdate"))
}

func TestSearchNoTypeFilterWhenEmpty(t *testing.T) {
	var queries []url.Values
	server := newTestServer(t, esearchEmpty, "", &queries)
	defer server.Close()

	client := newClientFor(server.URL)
	_, err := client.Search(context.Background(), papersources.SearchParams{
		Query:        `("Organoids"[Mesh])`,
		ArticleTypes: []string{},
	})
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, `("Organoids"[Mesh])`, queries[0].Get("term"))
	assert.NotContains(t, queries[0].Get("term"), "[pt]")
}

func TestSearchPhraseNotFoundIsEmpty(t *testing.T) {
	server := newTestServer(t, esearchEmpty, "", nil)
	defer server.Close()

	client := newClientFor(server.URL)
	papers, err := client.Search(context.Background(), papersources.SearchParams{Query: "nonexistentterm"})
	require.NoError(t, err)
	assert.Empty(t, papers)
}

func TestSearchPaginatesEsearch(t *testing.T) {
	var esearchCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		switch r.URL.Path {
		case "/esearch.fcgi":
			call := atomic.AddInt32(&esearchCalls, 1)
			// 3 total results served one per page
			id := 38000000 + int(call)
			fmt.Fprintf(w, `<?xml version="1.0"?><eSearchResult><Count>3</Count><RetMax>1</RetMax><RetStart>%d</RetStart><IdList><Id>%d</Id></IdList></eSearchResult>`, call-1, id)
		case "/efetch.fcgi":
			ids := strings.Split(r.URL.Query().Get("id"), ",")
			fmt.Fprint(w, `<?xml version="1.0"?><PubmedArticleSet>`)
			for _, id := range ids {
				fmt.Fprintf(w, `<PubmedArticle><MedlineCitation><PMID>%s</PMID><Article><Journal><JournalIssue><PubDate><Year>2025</Year></PubDate></JournalIssue><Title>J</Title></Journal><ArticleTitle>T</ArticleTitle></Article></MedlineCitation><PubmedData><ArticleIdList/></PubmedData></PubmedArticle>`, id)
			}
			fmt.Fprint(w, `</PubmedArticleSet>`)
		}
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	papers, err := client.Search(context.Background(), papersources.SearchParams{Query: "q", MaxResults: 10})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&esearchCalls))
	assert.Len(t, papers, 3)
}

func TestSearchCollapsesDuplicatePMIDs(t *testing.T) {
	var efetchIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		switch r.URL.Path {
		case "/esearch.fcgi":
			fmt.Fprint(w, `<?xml version="1.0"?><eSearchResult><Count>3</Count><RetMax>3</RetMax><RetStart>0</RetStart><IdList><Id>38000001</Id><Id>38000001</Id><Id>38000002</Id></IdList></eSearchResult>`)
		case "/efetch.fcgi":
			efetchIDs = append(efetchIDs, r.URL.Query().Get("id"))
			fmt.Fprint(w, `<?xml version="1.0"?><PubmedArticleSet/>`)
		}
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	_, err := client.Search(context.Background(), papersources.SearchParams{Query: "q"})
	require.NoError(t, err)
	require.Len(t, efetchIDs, 1)
	assert.Equal(t, "38000001,38000002", efetchIDs[0])
}

func TestSearchBatchesEfetch(t *testing.T) {
	const total = 150
	var efetchBatches []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		switch r.URL.Path {
		case "/esearch.fcgi":
			fmt.Fprintf(w, `<?xml version="1.0"?><eSearchResult><Count>%d</Count><RetMax>%d</RetMax><RetStart>0</RetStart><IdList>`, total, total)
			for i := 0; i < total; i++ {
				fmt.Fprintf(w, "<Id>%d</Id>", 38000000+i)
			}
			fmt.Fprint(w, `</IdList></eSearchResult>`)
		case "/efetch.fcgi":
			ids := r.URL.Query().Get("id")
			n := 1
			for _, ch := range ids {
				if ch == ',' {
					n++
				}
			}
			efetchBatches = append(efetchBatches, n)
			fmt.Fprint(w, `<?xml version="1.0"?><PubmedArticleSet/>`)
		}
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	_, err := client.Search(context.Background(), papersources.SearchParams{Query: "q", MaxResults: total})
	require.NoError(t, err)

	require.Len(t, efetchBatches, 2)
	assert.Equal(t, 100, efetchBatches[0])
	assert.Equal(t, 50, efetchBatches[1])
}

func TestSearchServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	_, err := client.Search(context.Background(), papersources.SearchParams{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "esearch failed")
}

func TestBuildTerm(t *testing.T) {
	assert.Equal(t, "query", buildTerm("query", nil))
	assert.Equal(t, `(q) AND ("Journal Article"[pt])`, buildTerm("q", []string{"Journal Article"}))
	assert.Equal(t, `(q) AND ("A"[pt] OR "B"[pt])`, buildTerm("q", []string{"A", "B"}))
}
