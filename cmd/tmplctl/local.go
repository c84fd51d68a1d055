package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailtmpl/internal/placeholder"
	"github.com/mailtmpl/internal/render"
)

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func (c *cli) extractCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "extract <file>...",
		Short: "Print the placeholders used by template files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lists := make([][]string, 0, len(args))
			for _, path := range args {
				body, err := readInput(cmd, path)
				if err != nil {
					return err
				}
				lists = append(lists, placeholder.Extract(body))
			}
			tokens := placeholder.Merge(lists...)
			for _, tok := range tokens {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
			}

			if unknown := placeholder.Unknown(tokens); check && len(unknown) > 0 {
				return fmt.Errorf("unknown placeholders: %s", strings.Join(unknown, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "fail when a placeholder is not in the catalog")
	return cmd
}

func (c *cli) renderCmd() *cobra.Command {
	var (
		subject  string
		sets     []string
		defaults bool
		text     bool
	)
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Substitute placeholder values into a template file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			values := placeholder.Values{}
			if defaults {
				values = placeholder.Defaults(time.Now())
			}
			values = placeholder.WithOverrides(values, c.cfg.Values)
			overrides, err := parseSets(sets)
			if err != nil {
				return err
			}
			values = placeholder.WithOverrides(values, overrides)

			out, err := render.Render(placeholder.Template{Subject: subject, HTMLBody: body}, values)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if subject != "" {
				fmt.Fprintf(w, "Subject: %s\n\n", out.Subject)
			}
			if text {
				fmt.Fprintln(w, out.Text)
			} else {
				fmt.Fprint(w, out.HTML)
			}

			tokens := placeholder.ExtractTemplate(placeholder.Template{Subject: subject, HTMLBody: body})
			if missing := placeholder.Missing(tokens, values); len(missing) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: no value for %s\n", strings.Join(missing, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject line to render alongside the body")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "placeholder value as key=value (repeatable)")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "start from the built-in sample values")
	cmd.Flags().BoolVar(&text, "text", false, "print the plain text alternative instead of HTML")
	return cmd
}

func parseSets(sets []string) (placeholder.Values, error) {
	values := placeholder.Values{}
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, errors.New("--set expects key=value, got " + s)
		}
		values[k] = v
	}
	return values, nil
}

func (c *cli) catalogCmd() *cobra.Command {
	var templateType string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List known placeholders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := placeholder.Catalog()
			if templateType != "" {
				if _, ok := placeholder.TypeInfoFor(templateType); !ok {
					return fmt.Errorf("unknown template type %q", templateType)
				}
				list = placeholder.AvailableFor(templateType)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tCATEGORY\tEXAMPLE")
			for _, p := range list {
				fmt.Fprintf(tw, "{{%s}}\t%s\t%s\n", p.Key, p.Category, p.Example)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&templateType, "type", "", "only placeholders relevant to this template type")
	return cmd
}
