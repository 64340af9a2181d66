package ai

import (
	"testing"

	"github.com/normanking/cortexcompanion/internal/mood"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    mood.Classification
		wantErr bool
	}{
		{
			name: "clean response",
			raw:  "positive, 3",
			want: mood.Classification{Sentiment: mood.SentimentPositive, Intensity: 3},
		},
		{
			name: "no space and trailing period",
			raw:  "negative,5.",
			want: mood.Classification{Sentiment: mood.SentimentNegative, Intensity: 5},
		},
		{
			name: "mixed case label",
			raw:  "Neutral, 1",
			want: mood.Classification{Sentiment: mood.SentimentNeutral, Intensity: 1},
		},
		{
			name: "intensity clamped high",
			raw:  "positive, 9",
			want: mood.Classification{Sentiment: mood.SentimentPositive, Intensity: 5},
		},
		{
			name: "intensity clamped low",
			raw:  "negative, 0",
			want: mood.Classification{Sentiment: mood.SentimentNegative, Intensity: 1},
		},
		{
			name:    "missing comma",
			raw:     "positive 3",
			wantErr: true,
		},
		{
			name:    "off-script label",
			raw:     "ecstatic, 4",
			wantErr: true,
		},
		{
			name:    "non-numeric intensity",
			raw:     "positive, very",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
