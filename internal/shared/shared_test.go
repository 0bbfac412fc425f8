package shared

import "testing"

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		artist string
		title  string
		want   string
	}{
		{
			name:   "basic normalization",
			artist: "Artist Name",
			title:  "Song Title",
			want:   "artist name|song title",
		},
		{
			name:   "extra whitespace",
			artist: "  Artist   Name  ",
			title:  "  Song   Title  ",
			want:   "artist name|song title",
		},
		{
			name:   "mixed case",
			artist: "ArTiSt NaMe",
			title:  "SoNg TiTlE",
			want:   "artist name|song title",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackKey(tt.artist, tt.title)
			if got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}
