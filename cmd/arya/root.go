package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eringen/arya"
	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/errs"
)

// envPrefix matches the variables the editor deployment already uses.
const envPrefix = "MARKDOWN_EDITOR"

var (
	cfgFile string
	v       = viper.New()
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "arya",
	Short: "Upload images and publish markdown to GitHub",
	Long: `arya stores editor images and markdown documents in GitHub repositories
through the Contents API.

Run "arya serve" to start the JSON API used by the editor, or use the
upload, publish and check commands directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		l, err := newLogger(v.GetString("log.level"), v.GetString("log.format"))
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = v.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() error {
	v.SetDefault("addr", ":3000")
	v.SetDefault("database_path", "data/arya.db")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("cookie_secure", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	for _, key := range []string{
		"admin_password", "session_secret", "api_key", "github_base_url",
		"github_token", "github_owner", "github_repo", "github_branch",
		"image_token", "image_owner", "image_repo", "image_branch", "image_dir", "image_link_rule",
	} {
		v.SetDefault(key, "")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return nil
}

// appConfig maps the loaded settings onto arya.Config. Image settings fall
// back to their content counterparts.
func appConfig() arya.Config {
	content := credentials.Credentials{
		Token:  v.GetString("github_token"),
		Owner:  v.GetString("github_owner"),
		Repo:   v.GetString("github_repo"),
		Branch: v.GetString("github_branch"),
	}
	image := credentials.Credentials{
		Token:     firstNonEmpty(v.GetString("image_token"), content.Token),
		Owner:     firstNonEmpty(v.GetString("image_owner"), content.Owner),
		Repo:      firstNonEmpty(v.GetString("image_repo"), content.Repo),
		Branch:    firstNonEmpty(v.GetString("image_branch"), content.Branch),
		Directory: v.GetString("image_dir"),
	}
	return arya.Config{
		Addr:           v.GetString("addr"),
		DatabasePath:   v.GetString("database_path"),
		AdminPassword:  v.GetString("admin_password"),
		SessionSecret:  v.GetString("session_secret"),
		APIKey:         v.GetString("api_key"),
		CookieSecure:   v.GetBool("cookie_secure"),
		GitHubBaseURL:  v.GetString("github_base_url"),
		RequestTimeout: v.GetDuration("request_timeout"),
		Content:        content,
		Image:          image,
		LinkRule:       v.GetString("image_link_rule"),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, s := range vals {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// openApp opens the database and credential store without serving.
func openApp() (*arya.App, error) {
	app := arya.New(appConfig(), arya.WithLogger(logger))
	if err := app.Open(); err != nil {
		return nil, err
	}
	return app, nil
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var e *errs.Error
	if errors.As(err, &e) {
		if hint := errs.HintFor(e); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
	}
}
