package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailtmpl/internal/bundle"
	"github.com/mailtmpl/internal/db"
	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/store"
)

const dbTimeout = 30 * time.Second

type templateCreator interface {
	Create(ctx context.Context, t *model.EmailTemplate) error
}

func (c *cli) openTemplates(ctx context.Context) (*store.TemplateStore, func(), error) {
	url, err := c.databaseURL()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.Open(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return store.NewTemplateStore(pool), pool.Close, nil
}

func (c *cli) importCmd() *cobra.Command {
	var (
		org    string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import <bundle.yaml>",
		Short: "Validate a template bundle and insert it into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := bundle.Decode(f)
			if err != nil {
				return err
			}

			if org == "" {
				org = c.cfg.OrganizationID
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d templates valid\n", len(entries))
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), dbTimeout)
			defer cancel()
			templates, closeDB, err := c.openTemplates(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			n, err := importEntries(ctx, templates, entries, org)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d templates\n", n, len(entries))
			return err
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "place every template in this organization")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only")
	return cmd
}

// importEntries creates one template per entry and stops at the first
// failure, reporting how many were stored.
func importEntries(ctx context.Context, templates templateCreator, entries []bundle.Entry, org string) (int, error) {
	for i, e := range entries {
		t := e.Template()
		if org != "" {
			t.OrganizationID = &org
		}
		if err := templates.Create(ctx, t); err != nil {
			return i, fmt.Errorf("templates[%d]: %w", i, err)
		}
	}
	return len(entries), nil
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		org string
		all bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored templates as a bundle to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if org == "" {
				org = c.cfg.OrganizationID
			}
			var lf store.ListFilter
			if !all {
				if org == "" {
					return errors.New("export needs --org or --all")
				}
				lf.OrganizationID = &org
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), dbTimeout)
			defer cancel()
			templates, closeDB, err := c.openTemplates(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			list, err := templates.List(ctx, lf)
			if err != nil {
				return err
			}
			return bundle.Encode(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization to export")
	cmd.Flags().BoolVar(&all, "all", false, "export every organization and global templates")
	return cmd
}
