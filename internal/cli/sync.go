package cli

import (
	"cmp"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/atinyakov/SessionSync/internal/client/collector"
	"github.com/spf13/cobra"
)

func (a *App) pushCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "push <url>",
		Short: "Upload the session of a site",
		Long: `Collect the Firefox cookies of the site serving <url> together with
its page storage mirror, encrypt them with the sync key and upload them,
replacing any earlier upload for the same origin. Close Firefox first.

Page storage is the per-origin JSON mirror under --storage-dir, not
Firefox's own localStorage or sessionStorage, which are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.syncer(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer done()

			res, err := s.Push(cmd.Context(), collector.Page{URL: args[0], Title: title})
			if err != nil {
				return err
			}
			printSuccess(a.Out, "Pushed "+res.Origin)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "page title stored with the snapshot")
	return cmd
}

func (a *App) pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <url>",
		Short: "Replace the session of a site with the uploaded one",
		Long: `Download the snapshot stored for the origin of <url>, remove the
site's current Firefox cookies, restore the snapshot's cookies and write
its page storage to the mirror under --storage-dir. Close Firefox first.

Firefox's own localStorage and sessionStorage are not modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.syncer(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer done()

			res, err := s.Pull(cmd.Context(), collector.Page{URL: args[0]})
			if err != nil {
				return err
			}
			if res.Message != "" {
				printInfo(a.Out, "Pulled "+res.Origin+": "+res.Message)
				return nil
			}
			printSuccess(a.Out, "Pulled "+res.Origin)
			return nil
		},
	}
}

func (a *App) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Short:   "List synced sites",
		Aliases: []string{"list"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := a.syncer(cmd.Context(), false)
			if err != nil {
				return err
			}
			res, err := s.ListOrigins(cmd.Context())
			if err != nil {
				return err
			}

			if a.flags.json {
				return json.NewEncoder(a.Out).Encode(res.Origins)
			}
			if len(res.Origins) == 0 {
				fmt.Fprintln(a.Out, "\n  No synced sites. Try 'sessionsync push <url>'.")
				return nil
			}
			w := tabwriter.NewWriter(a.Out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ORIGIN\tUPDATED")
			for _, o := range res.Origins {
				fmt.Fprintf(w, "%s\t%s\n", o.Origin, o.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func (a *App) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <origin>",
		Short:   "Delete the uploaded session of a site",
		Aliases: []string{"remove"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, err := collector.Page{URL: args[0]}.Origin()
			if err != nil {
				return fmt.Errorf("origin: %w", err)
			}
			s, _, err := a.syncer(cmd.Context(), false)
			if err != nil {
				return err
			}
			if _, err := s.DeleteOrigin(cmd.Context(), origin); err != nil {
				return err
			}
			printSuccess(a.Out, "Deleted "+origin)
			return nil
		},
	}
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version and date",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.Out, "SessionSync Client\nVersion: %s\nBuild Date: %s\n", cmp.Or(a.Version, "N/A"), cmp.Or(a.BuildDate, "N/A"))
		},
	}
}
