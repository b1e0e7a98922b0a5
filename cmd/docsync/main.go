package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/utils"
	"github.com/openmined/docsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "DOCSYNC"

// app is shared by every subcommand of one root command.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "docsync",
		Short:         "Keep org documents in sync with directories and git remotes",
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			return a.loadConfig(cmd)
		},
	}

	root.PersistentFlags().SortFlags = false
	root.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file")
	root.PersistentFlags().Bool("subfolders", false, "sync documents in subfolders")
	root.PersistentFlags().String("journal", "", "sync journal database")
	root.PersistentFlags().String("store", "", "directory holding local working copies")

	root.AddCommand(
		newListCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newMoveCmd(a),
		newRemoveCmd(a),
		newMergeCmd(a),
		newStatusCmd(a),
		newPushCmd(a),
		newSyncCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file, binds flags and environment and
// validates the result.
func (a *app) loadConfig(cmd *cobra.Command) error {
	v := a.v
	path, _ := cmd.Flags().GetString("config")
	if cmd.Flags().Changed("config") {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.AddConfigPath(filepath.Join(home(), ".config", "docsync"))
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	_ = v.BindPFlag("subfolder_support", cmd.Flags().Lookup("subfolders"))
	_ = v.BindPFlag("journal_path", cmd.Flags().Lookup("journal"))
	_ = v.BindPFlag("store_dir", cmd.Flags().Lookup("store"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	slog.Debug("config loaded", "path", cfg.Path, "backends", len(cfg.Backends))
	return nil
}

func home() string {
	h, _ := os.UserHomeDir()
	return h
}

// setupLogging logs to stderr through tint and to the log file as text.
// It returns the file to close on exit.
func setupLogging(logFile string, level slog.Level) (io.Closer, error) {
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})

	slog.SetDefault(slog.New(utils.NewTeeHandler(stdoutHandler, fileHandler)))
	return file, nil
}

func main() {
	level := slog.LevelWarn
	if os.Getenv(envPrefix+"_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logFile := config.DefaultLogFilePath
	if p := os.Getenv(envPrefix + "_LOG_FILE"); p != "" {
		logFile = p
	}

	closer, err := setupLogging(logFile, level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Debug("start", "version", version.String())
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		stop()
		closer.Close()
		os.Exit(1)
	}
}
