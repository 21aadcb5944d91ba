package probe_test

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/probe"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

var _ simplepublish.MediaAnalyzer = (*probe.Analyzer)(nil)

const verticalReport = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac", "duration": "44.9"},
    {"codec_type": "video", "codec_name": "h264", "width": 1080, "height": 1920,
     "duration": "45.000000", "nb_frames": "1350", "r_frame_rate": "30/1"}
  ],
  "format": {"duration": "45.02", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestAnalyzer_Video(t *testing.T) {
	path := writeFile(t, "clip.MP4", make([]byte, 2048))

	var probed string
	analyzer := probe.New(probe.WithProbeFunc(func(p string) (string, error) {
		probed = p
		return verticalReport, nil
	}))

	got, err := analyzer.Analyze(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, probed)
	assert.Equal(t, rules.MediaVideo, got.Kind)
	assert.Equal(t, 1080, got.Width)
	assert.Equal(t, 1920, got.Height)
	assert.Equal(t, 45.0, got.DurationSeconds)
	assert.Equal(t, "9:16", got.AspectRatio)
	assert.Equal(t, int64(2048), got.SizeBytes)
	assert.Equal(t, "mp4", got.Format)
}

func TestAnalyzer_ProbeFailure(t *testing.T) {
	path := writeFile(t, "broken.mov", []byte("not a movie"))
	analyzer := probe.New(probe.WithProbeFunc(func(string) (string, error) {
		return "", errors.New("exit status 1")
	}))

	_, err := analyzer.Analyze(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffprobe")
}

func TestAnalyzer_Image(t *testing.T) {
	var buf []byte
	{
		img := image.NewRGBA(image.Rect(0, 0, 1080, 1350))
		path := filepath.Join(t.TempDir(), "tmp.png")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
		buf, err = os.ReadFile(path)
		require.NoError(t, err)
	}
	path := writeFile(t, "post.png", buf)

	analyzer := probe.New(probe.WithProbeFunc(func(string) (string, error) {
		t.Fatal("images must not be probed with ffprobe")
		return "", nil
	}))

	got, err := analyzer.Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, rules.MediaImage, got.Kind)
	assert.Equal(t, 1080, got.Width)
	assert.Equal(t, 1350, got.Height)
	assert.Equal(t, "4:5", got.AspectRatio)
	assert.Zero(t, got.DurationSeconds)
	assert.Equal(t, "png", got.Format)
}

func TestAnalyzer_Errors(t *testing.T) {
	analyzer := probe.New()

	_, err := analyzer.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Error(t, err)

	_, err = analyzer.Analyze(context.Background(), writeFile(t, "garbage.jpg", []byte("nope")))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = analyzer.Analyze(ctx, "whatever.mp4")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name      string
		report    string
		format    string
		wantW     int
		wantH     int
		wantDur   float64
		wantFmt   string
		wantError bool
	}{
		{
			name:    "stream duration",
			report:  verticalReport,
			format:  "mp4",
			wantW:   1080,
			wantH:   1920,
			wantDur: 45,
			wantFmt: "mp4",
		},
		{
			name:    "falls back to container duration and name",
			report:  `{"streams":[{"codec_type":"video","width":1920,"height":1080}],"format":{"duration":"600.5","format_name":"mov,mp4"}}`,
			wantW:   1920,
			wantH:   1080,
			wantDur: 600.5,
			wantFmt: "mov",
		},
		{
			name:    "frames over frame rate",
			report:  `{"streams":[{"codec_type":"video","width":1280,"height":720,"nb_frames":"300","r_frame_rate":"30000/1001"}],"format":{}}`,
			format:  "mp4",
			wantW:   1280,
			wantH:   720,
			wantDur: 300 / (30000.0 / 1001.0),
			wantFmt: "mp4",
		},
		{
			name:    "rotated phone recording",
			report:  `{"streams":[{"codec_type":"video","width":1920,"height":1080,"duration":"12","side_data_list":[{"rotation":-90}]}],"format":{}}`,
			format:  "mov",
			wantW:   1080,
			wantH:   1920,
			wantDur: 12,
			wantFmt: "mov",
		},
		{
			name:    "legacy rotate tag",
			report:  `{"streams":[{"codec_type":"video","width":1920,"height":1080,"duration":"12","tags":{"rotate":"270"}}],"format":{}}`,
			format:  "mov",
			wantW:   1080,
			wantH:   1920,
			wantDur: 12,
			wantFmt: "mov",
		},
		{
			name:      "audio only",
			report:    `{"streams":[{"codec_type":"audio","duration":"30"}],"format":{"duration":"30"}}`,
			wantError: true,
		},
		{
			name:      "no duration",
			report:    `{"streams":[{"codec_type":"video","width":1920,"height":1080}],"format":{}}`,
			wantError: true,
		},
		{
			name:      "not json",
			report:    `ffprobe: command not found`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := probe.ParseProbe(tt.report, 1024, tt.format)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, rules.MediaVideo, got.Kind)
			assert.Equal(t, tt.wantW, got.Width)
			assert.Equal(t, tt.wantH, got.Height)
			assert.InDelta(t, tt.wantDur, got.DurationSeconds, 0.001)
			assert.Equal(t, tt.wantFmt, got.Format)
		})
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, probe.IsImage("/media/a.JPG"))
	assert.True(t, probe.IsImage("b.webp"))
	assert.False(t, probe.IsImage("c.mp4"))
	assert.False(t, probe.IsImage("noext"))
}
