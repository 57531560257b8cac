package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chain-keeper/internal/db"
	"chain-keeper/pkg/library"
	"chain-keeper/pkg/loader"
)

// withStore opens the library for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(library.Store) error) error {
	pool, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	store := library.NewPgStore(pool)
	if err := store.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure chains table: %w", err)
	}
	return fn(store)
}

func (a *app) saveCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "save FILE",
		Short: "Migrate, seal and store a document in the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readDocument(args[0])
			if err != nil {
				return err
			}
			l := loader.New(nil, a.log)
			res, err := l.Load(raw)
			if err != nil {
				return describeLoadError(err)
			}
			doc, err := l.Seal(res.Graph, a.cfg.AppVersion, time.Now())
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s library.Store) error {
				rec, err := s.Save(cmd.Context(), name, doc)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "title of the saved chain")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print a saved chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s library.Store) error {
				rec, err := s.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved chains, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s library.Store) error {
				recs, err := s.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, r := range recs {
					fmt.Fprintf(out, "%s  %s  rev %d  %s\n",
						r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Document.Revision(), r.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of chains to list")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every saved chain against its checksum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s library.Store) error {
				problems, err := s.Verify(cmd.Context())
				if err != nil {
					return err
				}
				if len(problems) > 0 {
					_ = printJSON(cmd.OutOrStdout(), problems)
					return fmt.Errorf("%d saved chains failed checksum verification", len(problems))
				}
				fmt.Fprintln(cmd.OutOrStdout(), `{"status":"ok","message":"all saved chains verified"}`)
				return nil
			})
		},
	}
}
