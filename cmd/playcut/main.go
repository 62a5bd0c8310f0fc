package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/playcut/internal/config"
	"github.com/keagan/playcut/internal/engine"
	"github.com/keagan/playcut/internal/logging"
	"github.com/keagan/playcut/internal/media"
	"github.com/keagan/playcut/internal/player"
	"github.com/keagan/playcut/pkg/util"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "playcut",
	Short: "playcut - timeline playback engine",
	Long:  "A timeline playback and media-buffer engine: probes sources, manages decode buffers, and plays edited timelines gaplessly.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	playCmd.Flags().StringVar(&seekTo, "seek", "", "start playback from a timestamp (HH:MM:SS.mmm)")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe [media file]",
	Short: "Probe a media file and print its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		backend, err := media.NewFFmpegBackend(
			log.Logger,
			cfg.FFmpeg.BinaryPath,
			cfg.FFmpeg.ProbePath,
			cfg.FFmpeg.ProxyWidth,
			cfg.FFmpeg.ProxyFPSCap,
		)
		if err != nil {
			return err
		}

		meta, err := backend.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("path:     %s\n", meta.Path)
		fmt.Printf("duration: %.3fs\n", meta.Duration)
		fmt.Printf("video:    %dx%d @ %.3g fps (%s)\n", meta.Width, meta.Height, meta.FPS, meta.Codec)
		if meta.HasAudio {
			fmt.Printf("audio:    %s\n", meta.AudioCodec)
		}
		fmt.Printf("size:     %d bytes\n", meta.FileSize)
		return nil
	},
}

var seekTo string

var playCmd = &cobra.Command{
	Use:   "play [media files...]",
	Short: "Import files onto a timeline and play it headlessly",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		eng, err := engine.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer eng.Close()

		for _, path := range args {
			clip, err := eng.Import(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("import failed for %s: %w", path, err)
			}
			log.Info().
				Str("clip", clip.ID).
				Float64("start", clip.StartTime).
				Float64("duration", clip.Duration).
				Msg("placed on timeline")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		eng.Player().OnStop(cancel)
		eng.Player().OnFrame(func(f player.Frame) {
			if f.Gap {
				return
			}
			log.Debug().
				Str("clip", f.ClipID).
				Float64("source_time", f.SourceTime).
				Msg("frame")
		})

		if seekTo != "" {
			d, err := util.ParseTimestamp(seekTo)
			if err != nil {
				return err
			}
			eng.Seek(d.Seconds())
		}

		eng.Play()
		eng.Run(ctx)

		stats := eng.PoolStats()
		log.Info().
			Int("buffers", stats.Count).
			Int("capacity", stats.Capacity).
			Float64("time", eng.CurrentTime()).
			Msg("playback finished")

		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}
