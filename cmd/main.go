package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"intellidoc/internal/config"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// cli holds the state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "intellidoc",
		Short:         "Document question answering and legal clause checks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log)
			log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", configFilePath, "path to a YAML or TOML config file")

	root.AddCommand(
		c.serveCmd(),
		c.ingestCmd(),
		c.askCmd(),
		c.checkCmd(),
		c.compareCmd(),
		c.sourcesCmd(),
		c.deleteCmd(),
		c.exportCmd(),
		c.importCmd(),
	)
	return root
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
	}
}

// redacted copies cfg without secrets for debug logging.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	mask := func(s *string) {
		if *s != "" {
			*s = "***"
		}
	}
	mask(&out.Storage.EncryptionKey)
	mask(&out.Database.Password)
	mask(&out.Database.DSN)
	mask(&out.EmbedLLM.Key)
	mask(&out.ChatLLM.Key)
	return out
}
