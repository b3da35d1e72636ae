package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/exhibit-client/pkg/logging"
	"github.com/Sternrassler/exhibit-client/pkg/store"
)

var version = "0.1.0"

// newRootCmd builds the command tree. Each call gets its own viper instance.
func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		cfg     appConfig
	)
	v := viper.New()

	root := &cobra.Command{
		Use:           "exhibit-browser",
		Short:         "Browse the museum catalog from the terminal",
		Long:          "exhibit-browser searches on-view objects of the museum catalog and pages through them one group at a time.",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(v, cmd.Flags(), cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded

			level, _ := logging.ParseLevel(cfg.LogLevel)
			logging.Setup(logging.Config{
				Level:  level,
				Pretty: cfg.Pretty,
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.exhibit-browser.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("pretty", false, "human-readable log output")
	flags.String("redis", "", "Redis address for response caching and shared throttle state (optional)")
	flags.String("db", "", "saved items database (default is $HOME/.exhibit-browser/saved.db)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("base-url", "", "catalog API base URL")

	root.AddCommand(newBrowseCmd(&cfg), newSavedCmd(&cfg))
	return root
}

func newBrowseCmd(cfg *appConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "browse <query>",
		Short: "Search the catalog and browse the results",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errEmptyQuery
			}

			a, err := newApp(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := newBrowser(a.catalog, a.saved, *cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer b.Close()

			return b.run(cmd.Context(), query, cmd.InOrStdin())
		},
	}
}

func newSavedCmd(cfg *appConfig) *cobra.Command {
	saved := &cobra.Command{
		Use:   "saved",
		Short: "Manage saved items",
	}

	saved.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved items ordered by title",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := store.Open(cfg.DB)
				if err != nil {
					return err
				}
				defer s.Close()

				items, err := s.List(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No saved items.")
					return nil
				}
				for _, item := range items {
					fmt.Fprintf(out, "%d\t%s\t%s\n", item.ObjectID, item.Title, item.ObjectURL)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <objectID>",
			Short: "Remove a saved item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid object id %q: %w", args[0], err)
				}

				s, err := store.Open(cfg.DB)
				if err != nil {
					return err
				}
				defer s.Close()

				removed, err := s.RemoveID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("object %d is not saved", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d.\n", id)
				return nil
			},
		},
	)

	return saved
}
