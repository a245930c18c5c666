package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/mopscov/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mopscov",
	Short: "mopscov - MOPS financial report discovery and coverage matrix",
	Long: `mopscov discovers the quarterly financial statements Taiwan listed
companies publish on MOPS, downloads the individual-entity reports, and
builds a company × quarter coverage matrix of what is on disk.

Individual reports (A12/A13) are preferred over consolidated ones
(AI1/A1L). English versions are never selected.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Cancelling ctx stops in-flight work.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.mopscov/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig layers defaults, the config file, .env and MOPSCOV_* variables
func initConfig() {
	// A missing .env is normal
	_ = godotenv.Load()

	// Defaults come from the typed config so every key is known to viper
	defaults, err := yaml.Marshal(model.DefaultConfig())
	if err == nil {
		viper.SetConfigType("yaml")
		_ = viper.ReadConfig(bytes.NewReader(defaults))
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
		} else {
			viper.AddConfigPath(filepath.Join(home, ".mopscov"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match MOPSCOV_SECTION_KEY
	viper.SetEnvPrefix("MOPSCOV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Conventional variables for secrets
	_ = viper.BindEnv("llm.api_key", "MOPSCOV_LLM_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("journal.database_url", "MOPSCOV_JOURNAL_DATABASE_URL", "DATABASE_URL")
	_ = viper.BindEnv("sheets.credentials_file", "MOPSCOV_SHEETS_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")

	// Keys omitted from the defaults still need to be known for env lookup
	for _, key := range []string{"sheets.spreadsheet_id", "http.http_proxy", "http.https_proxy", "http.no_proxy", "llm.base_url"} {
		_ = viper.BindEnv(key)
	}

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "✗ Config file: %v\n", err)
		}
	} else if verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the layered configuration. Unknown keys are rejected.
// Callers apply flag overrides and then validate.
func loadConfig() (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.UnmarshalExact(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the zap logger: development config when verbose,
// otherwise production config that only surfaces warnings
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func printBanner(title string) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  %s\n", title)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
}
