// Package cmd implements the mysql-migrate command line interface.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"mysql-migrate/internal/application"
	"mysql-migrate/internal/config"
	"mysql-migrate/internal/display"
)

var cfgFile string

// CLI flag variables
var (
	// Target database flags
	targetHost     string
	targetPort     int
	targetUsername string
	targetPassword string
	targetDatabase string

	// Operation flags
	ledgerPath    string
	migrationsDir string
	verbose       bool
	quiet         bool
	timeout       time.Duration
	logFile       string

	// Display flags
	noColor      bool
	jsonOutput   bool
	outputFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mysql-migrate",
	Short: "Versioned schema and data migrations for MySQL with backups and rollback",
	Long: `mysql-migrate applies versioned, checksummed migration sets to a MySQL
database. Dependencies between versions are resolved into an execution plan,
risky sets are protected by automatic pre-change backups, and every attempt
is recorded in a durable history ledger.

Examples:
  # Show the execution plan for a target version
  mysql-migrate plan 2.1.0 --config=config.yaml

  # Apply everything needed to reach a version
  mysql-migrate migrate 2.1.0 --config=config.yaml

  # Simulate without touching the database or the ledger
  mysql-migrate migrate 2.1.0 --dry-run

  # Reverse an applied version
  mysql-migrate rollback 2.1.0 --reason="bad index"

  # Backups
  mysql-migrate backup create --version=2.1.0
  mysql-migrate backup list
  mysql-migrate restore backup-3f8a...`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mysql-migrate.yaml)")

	rootCmd.PersistentFlags().StringVar(&targetHost, "host", "", "target database host")
	rootCmd.PersistentFlags().IntVar(&targetPort, "port", 3306, "target database port")
	rootCmd.PersistentFlags().StringVar(&targetUsername, "user", "", "target database username")
	rootCmd.PersistentFlags().StringVar(&targetPassword, "password", "", "target database password")
	rootCmd.PersistentFlags().StringVar(&targetDatabase, "database", "", "target database name")

	rootCmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "history ledger file path")
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "migrations", "", "directory of migration definitions")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "database operation timeout")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file instead of stdout")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable JSON output (same as --output=json)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: table, json, yaml, or compact")

	viper.BindPFlag("target.host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("target.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("target.username", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("target.password", rootCmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("target.database", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("ledger_path", rootCmd.PersistentFlags().Lookup("ledger"))
	viper.BindPFlag("migrations_dir", rootCmd.PersistentFlags().Lookup("migrations"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("logging.log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newConfigCommand())
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mysql-migrate")
	}

	viper.SetEnvPrefix("MYSQL_MIGRATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// buildConfig merges config file, environment, and flags into one Config
func buildConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if targetHost != "" {
		cfg.Target.Host = targetHost
	}
	if targetUsername != "" {
		cfg.Target.Username = targetUsername
	}
	if targetPassword != "" {
		cfg.Target.Password = targetPassword
	}
	if targetDatabase != "" {
		cfg.Target.Database = targetDatabase
	}
	if ledgerPath != "" {
		cfg.LedgerPath = ledgerPath
	}
	if migrationsDir != "" {
		cfg.MigrationsDir = migrationsDir
	}
	cfg.Verbose = cfg.Verbose || verbose
	cfg.Quiet = cfg.Quiet || quiet
	if logFile != "" {
		cfg.Logging.LogFile = logFile
	}

	if err := resolvePassphrase(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolvePassphrase fills the encryption passphrase from the environment or,
// on a real terminal, by prompting. The passphrase never comes from the
// config file.
func resolvePassphrase(cfg *config.Config) error {
	enc := cfg.Backup.Encryption
	if enc == nil || !enc.Enabled || enc.KeySource != "passphrase" || enc.Passphrase != "" {
		return nil
	}

	if passphrase := os.Getenv("MYSQL_MIGRATE_BACKUP_PASSPHRASE"); passphrase != "" {
		enc.Passphrase = passphrase
		return nil
	}

	if !term.IsTerminal(int(syscall.Stdin)) {
		return fmt.Errorf("backup encryption passphrase required: set MYSQL_MIGRATE_BACKUP_PASSPHRASE")
	}

	fmt.Fprint(os.Stderr, "Backup encryption passphrase: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("backup encryption passphrase cannot be empty")
	}

	enc.Passphrase = string(raw)
	return nil
}

// resolveFormat merges the --output flag with the --json shorthand
func resolveFormat() (display.Format, error) {
	if jsonOutput {
		return display.FormatJSON, nil
	}
	return display.ParseFormat(outputFormat)
}

// renderMachine writes v when a machine-readable output format is selected
// and reports whether it did. Table output stays with the caller. The compact
// summarizer, when given, replaces single-line JSON for compact mode.
func renderMachine(disp *display.Service, v interface{}, compact func() string) (bool, error) {
	format, err := resolveFormat()
	if err != nil {
		return true, err
	}
	switch format {
	case display.FormatJSON:
		return true, disp.JSON(v)
	case display.FormatYAML:
		return true, disp.YAML(v)
	case display.FormatCompact:
		if compact != nil {
			disp.Println(compact())
			return true, nil
		}
		return true, disp.CompactJSON(v)
	default:
		return false, nil
	}
}

// buildApp assembles and connects the application for a command run
func buildApp(cmd *cobra.Command) (*application.Application, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}

	disp := display.NewService(display.Options{NoColor: noColor})

	app, err := application.New(cfg, disp)
	if err != nil {
		return nil, err
	}

	if err := app.Connect(cmd.Context()); err != nil {
		return nil, err
	}

	return app, nil
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mysql-migrate version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
			fmt.Printf("Go version: %s\n", goVersion)
		},
	}
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config
flag. Redirect the output to a file and customize it for your environment:

  mysql-migrate config > config.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(config.SampleYAML)
		},
	}
}
