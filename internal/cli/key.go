package cli

import (
	"errors"
	"fmt"

	"github.com/atinyakov/SessionSync/internal/client/synckey"
	"github.com/atinyakov/SessionSync/internal/client/syncer"
	"github.com/spf13/cobra"
)

var (
	errKeyExists  = errors.New("a sync key is already configured; run 'sessionsync reset' first or pass --force")
	errInvalidKey = errors.New("invalid sync key format, expected XXXXXX-XXXXXX-XXXXXX-XXXXXX")
)

func (a *App) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new sync key",
		Long: `Create a new random sync key and save it.

Enter the same key on every machine that should share sessions
(sessionsync import <key>). Anyone holding the key can read your
synced sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := a.store()
			cfg, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Configured() && !force {
				return errKeyExists
			}
			key, err := synckey.Generate()
			if err != nil {
				return err
			}
			cfg.Passphrase = key
			if err := store.Save(cmd.Context(), cfg); err != nil {
				return err
			}
			printSuccess(a.Out, "Sync key created")
			fmt.Fprintf(a.Out, "\n    %s\n\n", key)
			printInfo(a.Out, "Import it on your other machines with 'sessionsync import <key>'")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key")
	return cmd
}

func (a *App) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <key>",
		Short: "Use an existing sync key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := synckey.Normalize(args[0])
			if !synckey.Validate(key) {
				return errInvalidKey
			}
			store := a.store()
			cfg, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			cfg.Passphrase = key
			if err := store.Save(cmd.Context(), cfg); err != nil {
				return err
			}
			printSuccess(a.Out, "Sync key saved")
			return nil
		},
	}
}

func (a *App) keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Print the configured sync key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.store().Load(cmd.Context())
			if err != nil {
				return err
			}
			if !cfg.Configured() {
				return syncer.ErrConfigMissing
			}
			fmt.Fprintln(a.Out, cfg.Passphrase)
			return nil
		},
	}
}

func (a *App) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the sync key and endpoint",
		Long: `Remove the local configuration. Snapshots already uploaded stay on
the server and can be read again by importing the same key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store().Reset(cmd.Context()); err != nil {
				return err
			}
			printSuccess(a.Out, "Configuration removed")
			return nil
		},
	}
}
