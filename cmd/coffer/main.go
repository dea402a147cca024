package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/config"
	"github.com/Veraticus/coffer/internal/service"
)

var version = "dev"

// app carries what every command shares for one invocation.
type app struct {
	in         io.Reader
	v          *viper.Viper
	cfg        *config.Config
	svc        *service.Service
	logCloser  io.Closer
	interrupts *cli.InterruptHandler
	cfgFile    string
}

func newApp() *app {
	return &app{
		in:         os.Stdin,
		v:          viper.New(),
		interrupts: cli.NewInterruptHandler(os.Stderr),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "coffer",
		Short: cli.CofferIcon + " Encrypted personal transaction ledger",
		Long: `coffer keeps a ledger of personal financial transactions in a local,
passphrase-protected SQLite store.

Record transactions by hand, import them from spreadsheets or OFX statements,
and browse them newest first.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/coffer/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	root.PersistentFlags().String("data-dir", "", "directory holding the store (default: "+config.DefaultDataDir+")")

	_ = a.v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))
	_ = a.v.BindPFlag("storage.data_dir", root.PersistentFlags().Lookup("data-dir"))

	root.AddCommand(statusCmd(a))
	root.AddCommand(unlockCmd(a))
	root.AddCommand(referenceCmd(a, "category", "categories"))
	root.AddCommand(referenceCmd(a, "bank", "banks"))
	root.AddCommand(referenceCmd(a, "type", "transaction types"))
	root.AddCommand(valuesCmd(a))
	root.AddCommand(txCmd(a))
	root.AddCommand(importCmd(a))
	root.AddCommand(importOFXCmd(a))
	root.AddCommand(checkpointCmd(a))
	root.AddCommand(browseCmd(a))
	root.AddCommand(versionCmd())

	return root
}

func main() {
	a := newApp()
	ctx, stop := a.interrupts.HandleInterrupts(context.Background())

	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if closeErr := a.close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, cli.FormatError(userErr.UserMessage))
		} else {
			fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		}
		os.Exit(1)
	}
}

func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		a.v.AddConfigPath(filepath.Join(home, ".config", "coffer"))
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	config.Configure(a.v)

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logOpts, err := cfg.LogOptions()
	if err != nil {
		return err
	}
	closer, err := common.SetupLogger(logOpts)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.logCloser = closer

	slog.Debug("configuration loaded", "config_file", a.v.ConfigFileUsed(), "db_path", cfg.DBPath(), "command", cmd.CommandPath())
	return nil
}

// close releases the store and the log file. It is safe to call twice.
func (a *app) close() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
		a.svc = nil
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
		a.logCloser = nil
	}
	return errors.Join(errs...)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coffer %s\n", version)
		},
	}
}
