package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framegate/internal/config"
	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/frame"
)

// Version is the application version.
const Version = "0.1.0"

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "framegate",
		Short:         "Single-frame-in-flight camera inference pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Init(logLevel)
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.PersistentFlags().StringVar(&logLevel, "log-level", config.LogLevel(), "Log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(),
		newBenchCmd(),
		newHistoryCmd(),
		newWatchCmd(),
		newCtlCmd(),
	)
	return root
}

// parseSize parses "WxH".
func parseSize(s string) (frame.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return frame.Size{}, fmt.Errorf("invalid size %q, want WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return frame.Size{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return frame.Size{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return frame.Size{}, fmt.Errorf("invalid size %q, dimensions must be positive", s)
	}
	return frame.Size{Width: width, Height: height}, nil
}

// parseLayout maps a flag value to a frame layout.
func parseLayout(s string) (frame.Layout, error) {
	switch strings.ToLower(s) {
	case "nv21", "semi-planar", "semiplanar":
		return frame.LayoutSemiPlanar, nil
	case "planar", "yuv420", "i420":
		return frame.LayoutPlanar, nil
	default:
		return frame.LayoutUnknown, fmt.Errorf("unknown layout %q (nv21, planar)", s)
	}
}
