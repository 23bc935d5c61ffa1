package plagiarism

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		words []string
		want  string
	}{
		{name: "no words", text: "a <b> & c", want: "a &lt;b&gt; &amp; c"},
		{name: "empty text", text: "", words: []string{"a"}, want: ""},
		{
			name:  "marks matching words case-insensitively",
			text:  "The quick brown Fox",
			words: []string{"the", "fox"},
			want:  "<mark>The</mark> quick brown <mark>Fox</mark>",
		},
		{
			name:  "keeps whitespace",
			text:  "  fox\n\tjumps  ",
			words: []string{"jumps"},
			want:  "  fox\n\t<mark>jumps</mark>  ",
		},
		{
			name:  "escapes marked words",
			text:  "x <script> y",
			words: []string{"<script>"},
			want:  "x <mark>&lt;script&gt;</mark> y",
		},
		{
			name:  "words glued to punctuation are distinct",
			text:  "fox, fox",
			words: []string{"fox"},
			want:  "fox, <mark>fox</mark>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.text, tt.words))
		})
	}
}

func TestHighlight_checkReport(t *testing.T) {
	text := "The quick brown fox jumps high"
	r := Check(text, []string{fox})
	assert.Equal(t, "<mark>The</mark> <mark>quick</mark> <mark>brown</mark> <mark>fox</mark> <mark>jumps</mark> high", Highlight(text, r.MatchingChunks))
}
