package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "publishctl",
		Short: "Inspect media and plan social publications offline",
		Long: `publishctl probes media files and checks them against the platform
capability table without a running server.

Examples:
  # Describe a clip
  publishctl probe clip.mp4

  # Check every Instagram content type
  publishctl validate clip.mp4 --platform instagram

  # Build an auto-optimized preview for several platforms
  publishctl preview clip.mp4 --platforms instagram,youtube,tiktok --auto-optimize

  # Skip ffprobe by describing the media directly
  publishctl validate --media-json '{"type":"video","width":1080,"height":1920,"duration_seconds":30,"size_bytes":1048576}' --platform tiktok`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("capability-file", "", "YAML capability table replacing the embedded one")
	rootCmd.PersistentFlags().String("media-json", "", "media descriptor as JSON instead of probing a file")

	rootCmd.AddCommand(NewProbeCommand())
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewPreviewCommand())
	rootCmd.AddCommand(NewCapabilitiesCommand())

	return rootCmd
}

func capabilityTable(cmd *cobra.Command) (*rules.Table, error) {
	path, _ := cmd.Flags().GetString("capability-file")
	if path == "" {
		return rules.Default(), nil
	}
	return rules.LoadFile(path)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
