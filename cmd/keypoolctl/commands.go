package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-keypool-service/internal/pool"
	"github.com/tinywideclouds/go-keypool-service/internal/storage"
	"github.com/tinywideclouds/go-keypool-service/keypool/config"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

const timeLayout = "2006-01-02 15:04"

// cli carries the flags and the service shared by every subcommand.
type cli struct {
	configPath string
	filePath   string
	verbose    bool

	svc       *pool.Service
	closeFunc func() error
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "keypoolctl",
		Short: "Inspect and rotate a key pool store",
		Long: `keypoolctl works on the same store the key pool service uses.

Examples:
  keypoolctl list                       # List every key with its status
  keypoolctl add main sk-123            # Append a key to the pool
  keypoolctl exhaust main --advance     # Retire a key and rotate past it
  keypoolctl check --fix                # Validate the pool and repair the current pointer`,
		SilenceUsage:       true,
		PersistentPreRunE:  c.open,
		PersistentPostRunE: c.close,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file describing the store")
	root.PersistentFlags().StringVar(&c.filePath, "file", "", "JSON pool file; overrides the configured store")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log store activity to stderr")

	root.AddCommand(
		c.listCmd(),
		c.addCmd(),
		c.removeCmd(),
		c.currentCmd(),
		c.nextCmd(),
		c.exhaustCmd(),
		c.activateCmd(),
		c.selectCmd(),
		c.resetCmd(),
		c.statsCmd(),
		c.checkCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("Failed to load .env file", "err", err)
	}

	cfg := &config.Config{Store: storage.Config{Backend: storage.BackendFile}}
	if c.configPath != "" {
		loaded, err := config.LoadBaseFromFile(c.configPath, logger)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	config.ApplyEnvOverrides(cfg, logger)
	if c.filePath != "" {
		cfg.Store = storage.Config{Backend: storage.BackendFile, FilePath: c.filePath}
	}

	store, closeFunc, err := storage.Open(cmd.Context(), cfg.Store, logger)
	if err != nil {
		return err
	}
	c.svc = pool.New(store, logger)
	c.closeFunc = closeFunc
	return nil
}

func (c *cli) close(_ *cobra.Command, _ []string) error {
	if c.closeFunc == nil {
		return nil
	}
	return c.closeFunc()
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every key with its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.svc.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(p) == 0 {
				fmt.Fprintln(out, "No keys found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tCURRENT\tLAST USED\tEXHAUSTED AT")
			for _, r := range p {
				current := ""
				if r.Current {
					current = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, status(r), current, when(r.LastUsed), when(r.LastMarkedExhausted))
			}
			return w.Flush()
		},
	}
}

func (c *cli) addCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "add NAME VALUE",
		Short: "Append a key to the pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := c.svc.AddKey(cmd.Context(), pool.AddKeyInput{
				Name:     args[0],
				Value:    args[1],
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added key %s\n", rec.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email stored with the key")
	cmd.Flags().StringVar(&password, "password", "", "account password stored with the key")
	return cmd
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm", "delete"},
		Short:   "Delete a key from the pool",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.svc.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted key %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) currentCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Print the key in use, adopting one if none is current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, _, err := c.svc.Current(cmd.Context())
			if err != nil {
				return err
			}
			printKey(cmd.OutOrStdout(), rec, quiet)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key value")
	return cmd
}

func (c *cli) nextCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Rotate to the next active key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, _, err := c.svc.Next(cmd.Context())
			if err != nil {
				return err
			}
			printKey(cmd.OutOrStdout(), rec, quiet)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key value")
	return cmd
}

func (c *cli) exhaustCmd() *cobra.Command {
	var advance bool
	cmd := &cobra.Command{
		Use:   "exhaust NAME",
		Short: "Take a key out of rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !advance {
				rec, err := c.svc.Exhaust(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Key %s marked as exhausted\n", rec.Name)
				return nil
			}
			res, err := c.svc.ExhaustAndAdvance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Key %s marked as exhausted\n", res.Exhausted.Name)
			if res.Next == nil {
				fmt.Fprintln(out, "No more active keys")
				return nil
			}
			fmt.Fprintf(out, "Switched to key %s\n", res.Next.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&advance, "advance", false, "rotate to the next active key afterwards")
	return cmd
}

func (c *cli) activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate NAME",
		Short: "Return a key to rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := c.svc.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key %s activated\n", rec.Name)
			return nil
		},
	}
}

func (c *cli) selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select NAME",
		Short: "Make a key current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := c.svc.Select(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key %s set as current\n", rec.Name)
			return nil
		},
	}
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reactivate every key and start over from the first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.svc.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All %d keys reactivated\n", len(p))
			return nil
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			lastUsed := s.LastUsed
			if lastUsed == "" {
				lastUsed = "-"
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Total:\t%d\n", s.Total)
			fmt.Fprintf(w, "Active:\t%d\n", s.Active)
			fmt.Fprintf(w, "Exhausted:\t%d\n", s.Exhausted)
			fmt.Fprintf(w, "Never used:\t%d\n", s.Unused)
			fmt.Fprintf(w, "Last used:\t%s\n", lastUsed)
			return w.Flush()
		},
	}
}

func (c *cli) checkCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the stored pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if fix {
				changed, err := c.svc.Normalize(cmd.Context())
				if err != nil {
					return err
				}
				if changed {
					fmt.Fprintln(out, "Current key repaired")
				}
			}
			p, err := c.svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return fmt.Errorf("pool is inconsistent: %w", err)
			}
			if _, ok := p.Current(); !ok && p.Stats().Active > 0 {
				fmt.Fprintln(out, "No key is current; run with --fix to adopt one")
			}
			fmt.Fprintf(out, "Pool OK: %d keys\n", len(p))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair the current key pointer before validating")
	return cmd
}

func printKey(out io.Writer, rec keypool.KeyRecord, quiet bool) {
	if quiet {
		fmt.Fprintln(out, rec.Value)
		return
	}
	fmt.Fprintf(out, "%s\t%s\n", rec.Name, rec.Value)
}

func status(r keypool.KeyRecord) string {
	switch {
	case r.Exhausted:
		return "exhausted"
	case r.Active:
		return "active"
	default:
		return "inactive"
	}
}

func when(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
