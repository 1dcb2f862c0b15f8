package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare DOI unchanged",
			input: "10.1038/s41586-021-03819-2",
			want:  "10.1038/s41586-021-03819-2",
		},
		{
			name:  "uppercase lowered",
			input: "10.1093/NAR/GKAB1049",
			want:  "10.1093/nar/gkab1049",
		},
		{
			name:  "https resolver prefix stripped",
			input: "https://doi.org/10.1038/s41586-021-03819-2",
			want:  "10.1038/s41586-021-03819-2",
		},
		{
			name:  "dx resolver prefix stripped",
			input: "http://dx.doi.org/10.1000/xyz123",
			want:  "10.1000/xyz123",
		},
		{
			name:  "doi scheme prefix stripped",
			input: "doi:10.1000/xyz123",
			want:  "10.1000/xyz123",
		},
		{
			name:  "percent escapes decoded",
			input: "10.1000/abc%28def%29",
			want:  "10.1000/abc(def)",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  10.1000/xyz123 \n",
			want:  "10.1000/xyz123",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "non-DOI rejected",
			input: "not-a-doi",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDOI(tt.input))
		})
	}
}
