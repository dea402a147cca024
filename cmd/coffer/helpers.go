package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/service"
	"github.com/Veraticus/coffer/internal/storage"
	"github.com/Veraticus/coffer/internal/vault"
)

// newService builds a service over a handle for the configured store
// without unlocking it.
func (a *app) newService() *service.Service {
	h := vault.New(a.cfg.DBPath(), a.cfg.StorageOptions())
	return service.New(h, service.Options{AutoCheckpoint: a.cfg.Import.AutoCheckpoint})
}

// service returns an unlocked service, asking for the passphrase when
// COFFER_PASSPHRASE is not set. A missing store is created.
func (a *app) service(cmd *cobra.Command) (*service.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	ctx := cmd.Context()
	svc := a.newService()
	initialized := svc.IsInitialized()

	passphrase, err := a.passphrase(ctx, cmd.ErrOrStderr(), initialized)
	if err != nil {
		return nil, err
	}

	if err := svc.SetPassphraseErr(ctx, passphrase); err != nil {
		if errors.Is(err, storage.ErrWrongPassphrase) {
			return nil, common.NewUserError("Wrong passphrase", err)
		}
		return nil, common.NewUserError("Could not open the store at "+a.cfg.DBPath(), err)
	}
	if !initialized {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess("Created a new store at "+a.cfg.DBPath()))
	}

	a.svc = svc
	return svc, nil
}

func (a *app) passphrase(ctx context.Context, out io.Writer, initialized bool) (string, error) {
	if p := a.v.GetString("passphrase"); p != "" {
		return p, nil
	}

	prompter := cli.NewPrompter(a.in, out)
	if initialized {
		return prompter.Passphrase(ctx, "Passphrase")
	}
	fmt.Fprintln(out, cli.FormatInfo("No store found; choose a passphrase to create one."))
	return prompter.NewPassphrase(ctx)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("%q is not a transaction id", arg), common.ErrValidation)
	}
	return id, nil
}

func printLine(cmd *cobra.Command, s string) {
	fmt.Fprintln(cmd.OutOrStdout(), s)
}
