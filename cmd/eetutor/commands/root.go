// Package commands defines all Cobra CLI commands for the eetutor binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voltlab/eetutor-go/internal/audit"
	"github.com/voltlab/eetutor-go/internal/config"
	"github.com/voltlab/eetutor-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eetutor",
		Short: "EE Tutor — answers electrical-engineering questions from your textbook",
		Long: `EE Tutor answers open-ended electrical-engineering questions by combining
retrieval over an uploaded textbook PDF, a vision-language reasoning model,
a code-generation model, and a deterministic circuit-diagram renderer.

The three model-serving endpoints (reasoning, code generation, embedding)
are configured via VLM_ENDPOINT, CODEGEN_ENDPOINT, and EMBEDDING_ENDPOINT
or a YAML config file (~/.eetutor/config.yaml).
See 'eetutor --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is a developer convenience; absence is not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.eetutor/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewSolveCmd(),
		NewVersionCmd(),
	)

	return root
}
