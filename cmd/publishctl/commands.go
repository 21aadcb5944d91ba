package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/probe"
	"github.com/tendant/simple-publish/pkg/simplepublish/repo/memory"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
	fsstorage "github.com/tendant/simple-publish/pkg/simplepublish/storage/fs"
	"github.com/tendant/simple-publish/pkg/simplepublish/thumbnail"
)

// describeMedia returns the --media-json descriptor, or probes the file argument.
func describeMedia(cmd *cobra.Command, args []string) (rules.MediaDescriptor, error) {
	raw, _ := cmd.Flags().GetString("media-json")
	if raw != "" {
		var media rules.MediaDescriptor
		if err := json.Unmarshal([]byte(raw), &media); err != nil {
			return rules.MediaDescriptor{}, fmt.Errorf("invalid --media-json: %w", err)
		}
		media = rules.NewMediaDescriptor(media.Kind, media.Width, media.Height, media.DurationSeconds, media.SizeBytes, media.Format)
		return media, media.Check()
	}
	if len(args) == 0 {
		return rules.MediaDescriptor{}, fmt.Errorf("a media file or --media-json is required")
	}
	return probe.New().Analyze(cmd.Context(), args[0])
}

// NewProbeCommand creates the probe command
func NewProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the media descriptor of a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := describeMedia(cmd, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), media)
		},
	}
}

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	var platform, contentType string

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate media against one platform",
		Long:  `Print the verdict for one content type, or for every type the platform offers for the media.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rules.ParsePlatform(platform)
			if err != nil {
				return err
			}
			table, err := capabilityTable(cmd)
			if err != nil {
				return err
			}
			media, err := describeMedia(cmd, args)
			if err != nil {
				return err
			}

			if contentType != "" {
				return printJSON(cmd.OutOrStdout(), table.Validate(media, p, rules.ContentType(contentType)))
			}
			result, err := table.ValidatePublication(media, []rules.Platform{p})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", "target platform")
	cmd.Flags().StringVarP(&contentType, "type", "t", "", "content type to check (default: all)")
	_ = cmd.MarkFlagRequired("platform")

	return cmd
}

// NewPreviewCommand creates the preview command
func NewPreviewCommand() *cobra.Command {
	var platforms []string
	var autoOptimize bool
	var thumbnailDir string

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Build a publication preview against an in-memory service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			table, err := capabilityTable(cmd)
			if err != nil {
				return err
			}

			opts := []simplepublish.Option{
				simplepublish.WithRepository(memory.New()),
				simplepublish.WithCapabilityTable(table),
				simplepublish.WithMediaAnalyzer(probe.New()),
			}
			if thumbnailDir != "" {
				store, err := fsstorage.New(fsstorage.Config{BaseDir: thumbnailDir})
				if err != nil {
					return err
				}
				opts = append(opts, simplepublish.WithThumbnailGenerator(thumbnail.New(store)))
			}
			svc, err := simplepublish.New(opts...)
			if err != nil {
				return err
			}

			req := simplepublish.CreatePublicationRequest{WorkspaceID: 1}
			if len(args) > 0 {
				req.MediaFiles = []string{args[0]}
			}
			if raw, _ := cmd.Flags().GetString("media-json"); raw != "" {
				media, err := describeMedia(cmd, args)
				if err != nil {
					return err
				}
				req.MediaInfo = &media
			}
			pub, err := svc.CreatePublication(ctx, req)
			if err != nil {
				return err
			}

			var accountIDs []int64
			for _, name := range platforms {
				p, err := rules.ParsePlatform(name)
				if err != nil {
					return err
				}
				account, err := svc.CreateSocialAccount(ctx, simplepublish.CreateSocialAccountRequest{
					WorkspaceID: 1,
					Platform:    p,
					AccountName: strings.ToLower(name),
				})
				if err != nil {
					return err
				}
				accountIDs = append(accountIDs, account.ID)
			}

			preview, err := svc.GeneratePreview(ctx, simplepublish.PreviewRequest{
				PublicationID: pub.ID,
				AccountIDs:    accountIDs,
				AutoOptimize:  autoOptimize,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), preview)
		},
	}

	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "comma-separated target platforms")
	cmd.Flags().BoolVar(&autoOptimize, "auto-optimize", false, "apply optimized settings")
	cmd.Flags().StringVar(&thumbnailDir, "thumbnails", "", "write thumbnails to this directory")
	_ = cmd.MarkFlagRequired("platforms")

	return cmd
}

// NewCapabilitiesCommand creates the capabilities command
func NewCapabilitiesCommand() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Print the platform capability table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := capabilityTable(cmd)
			if err != nil {
				return err
			}
			if platform == "" {
				return printJSON(cmd.OutOrStdout(), table.All())
			}
			p, err := rules.ParsePlatform(platform)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[rules.Platform][]rules.Capability{p: table.Capabilities(p)})
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", "limit output to one platform")

	return cmd
}
