// ABOUTME: Tests for locator parsing and selector derivation
// ABOUTME: Covers the closed kind set, parse failures, and CSS translation

package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Locator
		wantErr bool
	}{
		{
			name:  "name locator",
			input: "NAME@@username",
			want:  Locator{Kind: ByName, Identifier: "username"},
		},
		{
			name:  "id locator",
			input: "ID@@chlginput",
			want:  Locator{Kind: ByID, Identifier: "chlginput"},
		},
		{
			name:  "class locator",
			input: "CLASS_NAME@@alert.alert-danger.margin-top-10",
			want:  Locator{Kind: ByClass, Identifier: "alert.alert-danger.margin-top-10"},
		},
		{
			name:  "css locator",
			input: "CSS_SELECTOR@@.btn.btn-lg.btn-primary",
			want:  Locator{Kind: ByCSS, Identifier: ".btn.btn-lg.btn-primary"},
		},
		{
			name:  "tag text locator",
			input: "TAG_NAME@@Client login succeeds",
			want:  Locator{Kind: ByTagText, Identifier: "Client login succeeds"},
		},
		{
			name:    "unknown kind",
			input:   "XPATH@@//input",
			wantErr: true,
		},
		{
			name:    "missing separator",
			input:   "NAME:username",
			wantErr: true,
		},
		{
			name:    "empty identifier",
			input:   "NAME@@",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelector(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ID@@chlginput", "#chlginput"},
		{"NAME@@user_name", `[name="user_name"]`},
		{"CLASS_NAME@@alert.alert-danger.margin-top-10", ".alert.alert-danger.margin-top-10"},
		{"CLASS_NAME@@alert alert-danger", ".alert.alert-danger"},
		{"CSS_SELECTOR@@.btn.btn-lg.btn-primary", ".btn.btn-lg.btn-primary"},
		{"TAG_NAME@@Client login succeeds", "pre, body"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.input).Selector())
		})
	}
}

func TestMatchesText(t *testing.T) {
	assert.True(t, MustParse("TAG_NAME@@Client login succeeds").MatchesText())
	assert.False(t, MustParse("ID@@chlginput").MatchesText())
}

func TestString_RoundTrip(t *testing.T) {
	const raw = "NAME@@username"
	assert.Equal(t, raw, MustParse(raw).String())
}
