package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

const verticalClip = `{"type":"video","width":1080,"height":1920,"duration_seconds":30,"size_bytes":10485760,"format":"mp4"}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCapabilitiesCommand(t *testing.T) {
	out, err := run(t, "capabilities", "--platform", "tiktok")
	require.NoError(t, err)

	var got map[string][]rules.Capability
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got["tiktok"], 1)
	assert.Equal(t, rules.ContentType("video"), got["tiktok"][0].Type)

	_, err = run(t, "capabilities", "--platform", "myspace")
	assert.ErrorIs(t, err, rules.ErrUnknownPlatform)
}

func TestProbeCommand_MediaJSON(t *testing.T) {
	out, err := run(t, "probe", "--media-json", verticalClip)
	require.NoError(t, err)

	var media rules.MediaDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &media))
	assert.Equal(t, "9:16", media.AspectRatio)
	assert.Equal(t, rules.MediaVideo, media.Kind)

	_, err = run(t, "probe")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	t.Run("all types", func(t *testing.T) {
		out, err := run(t, "validate", "--media-json", verticalClip, "--platform", "instagram")
		require.NoError(t, err)

		var result rules.PublicationValidation
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		require.Len(t, result.Results, 1)
		assert.Equal(t, rules.ContentReel, result.DetectedType)
		assert.True(t, result.Results[0].Verdicts[rules.ContentReel].IsCompatible)
	})

	t.Run("single type", func(t *testing.T) {
		out, err := run(t, "validate", "--media-json", verticalClip, "-p", "youtube", "-t", "standard")
		require.NoError(t, err)

		var verdict rules.Verdict
		require.NoError(t, json.Unmarshal([]byte(out), &verdict))
		assert.Equal(t, rules.ContentType("standard"), verdict.Type)
	})

	t.Run("platform required", func(t *testing.T) {
		_, err := run(t, "validate", "--media-json", verticalClip)
		assert.Error(t, err)
	})
}

func TestPreviewCommand(t *testing.T) {
	out, err := run(t, "preview", "--media-json", verticalClip, "--platforms", "instagram,tiktok", "--auto-optimize")
	require.NoError(t, err)

	var preview simplepublish.PublicationPreview
	require.NoError(t, json.Unmarshal([]byte(out), &preview))
	require.Len(t, preview.PlatformConfigurations, 2)
	assert.Equal(t, rules.ContentReel, preview.PlatformConfigurations[0].Type)
	assert.Equal(t, rules.Platform("tiktok"), preview.PlatformConfigurations[1].Platform)
	assert.True(t, preview.PlatformConfigurations[1].IsCompatible)
}
