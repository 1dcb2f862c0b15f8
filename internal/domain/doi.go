package domain

import (
	"net/url"
	"strings"
)

// doiPrefixes are the resolver and scheme prefixes stripped during
// normalization. Providers disagree on which form they emit.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// NormalizeDOI canonicalizes a DOI for citation lookup: trims whitespace,
// strips resolver prefixes, URL-decodes percent escapes, and lowercases.
// Returns the empty string for input that cannot be a DOI.
func NormalizeDOI(raw string) string {
	doi := strings.TrimSpace(raw)
	lower := strings.ToLower(doi)
	for _, p := range doiPrefixes {
		if strings.HasPrefix(lower, p) {
			doi = doi[len(p):]
			break
		}
	}
	if decoded, err := url.PathUnescape(doi); err == nil {
		doi = decoded
	}
	doi = strings.ToLower(strings.TrimSpace(doi))
	if !strings.HasPrefix(doi, "10.") {
		return ""
	}
	return doi
}
