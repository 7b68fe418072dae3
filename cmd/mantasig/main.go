package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vitalvas/mantasig/config"
)

type rootOptions struct {
	configFile string
	debug      bool

	user    string
	keyPath string
	keyID   string
	url     string
}

func newRootCommand(logger *logrus.Logger) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mantasig",
		Short:         "Sign and verify object storage HTTP requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.debug {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file")
	flags.BoolVarP(&opts.debug, "debug", "D", false, "Enable debug logging")
	installIdentityFlags(opts, flags)

	cmd.AddCommand(
		newFingerprintCommand(),
		newSignCommand(opts, logger),
		newVerifyCommand(),
		newRequestCommand(opts, logger),
	)

	return cmd
}

func installIdentityFlags(opts *rootOptions, flags *pflag.FlagSet) {
	flags.StringVarP(&opts.user, "user", "u", "", "Account name (overrides MANTA_USER)")
	flags.StringVarP(&opts.keyPath, "key", "k", "", "Private key file (overrides MANTA_KEY_PATH)")
	flags.StringVar(&opts.keyID, "key-id", "", "Expected key fingerprint (overrides MANTA_KEY_ID)")
	flags.StringVar(&opts.url, "url", "", "Storage service URL (overrides MANTA_URL)")
}

// loadConfig reads the configuration file and environment, then applies
// command line overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return config.Config{}, err
	}

	if o.user != "" {
		cfg.User = o.user
	}

	if o.keyPath != "" {
		cfg.KeyPath = o.keyPath
		cfg.KeyContent = ""
	}

	if o.keyID != "" {
		cfg.KeyID = o.keyID
	}

	if o.url != "" {
		cfg.URL = o.url
	}

	return cfg, nil
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := newRootCommand(logger).Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
