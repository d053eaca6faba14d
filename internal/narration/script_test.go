package narration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortsmith/api/internal/model"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{
			name:   "inline labels",
			script: "Hook: Stop scrolling. CTA: Try it now.",
			want:   "Stop scrolling. Try it now.",
		},
		{
			name:   "labelled sections drop points",
			script: "Title: Launch\nHook: Tired of slow builds?\nPoints:\n- cache\n- parallel\nCTA: Ship faster today",
			want:   "Tired of slow builds? Ship faster today",
		},
		{
			name:   "markdown labels",
			script: "**Hook:** Big news\n**CTA:** Follow for more",
			want:   "Big news. Follow for more",
		},
		{
			name:   "json object",
			script: `{"Hook":"Hook: Wait for it","Points":["a","b"],"cta":"Subscribe"}`,
			want:   "Wait for it. Subscribe",
		},
		{
			name:   "only hook",
			script: "Hook: Just this line.",
			want:   "Just this line.",
		},
		{
			name:   "unlabelled takes first and last line",
			script: "Meet the new phone.\n- faster\n- lighter\nPoints to remember\nGet yours today!",
			want:   "Meet the new phone. Get yours today!",
		},
		{
			name:   "single unlabelled line",
			script: "One line only",
			want:   "One line only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	for _, script := range []string{
		"",
		"   \n  ",
		"Points: speed, price, battery",
		"Points:\n- speed\n- price",
		"- a bullet\n* another\n1. numbered",
		`{"points":["a"]}`,
	} {
		_, err := Extract(script)
		assert.ErrorIs(t, err, model.ErrEmptyInput, script)
	}
}
