// Package cmd holds auxiliary cobra commands attached to the CLI.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmayorov/camstreamer/internal/camera"
	"github.com/rmayorov/camstreamer/internal/config"
	"github.com/rmayorov/camstreamer/internal/publish"
)

// CreateValidateCmd creates the validate command. It loads a stream
// config file, checks every field, and prints the capture and encoder
// commands that would run. The stream key never appears in the output.
func CreateValidateCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a stream configuration file",
		Long: `Loads the stream configuration, validates every field, and prints the ` +
			`capture and encoder commands that would be executed. Exits non-zero on ` +
			`any validation failure, so it can gate deployments.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			path := "stream.toml"
			if len(args) == 1 {
				path = args[0]
			}

			cfg, err := config.LoadStream(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				os.Exit(1)
			}

			if quiet {
				return
			}

			captureCommand := cfg.CaptureCommand
			if captureCommand == "" {
				captureCommand = camera.DefaultCaptureCommand(cfg)
			}
			encoderCommand := publish.BuildCommand(publish.FromConfig(cfg))

			fmt.Printf("%s: ok\n", path)
			fmt.Printf("  config:  %s\n", cfg.String())
			fmt.Printf("  capture: %s\n", captureCommand)
			fmt.Printf("  encoder: %s\n", redactKey(encoderCommand, cfg.StreamKey))
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only report validity through the exit code")
	return cmd
}

func redactKey(command, key string) string {
	if key == "" {
		return command
	}
	return strings.ReplaceAll(command, key, "****")
}
