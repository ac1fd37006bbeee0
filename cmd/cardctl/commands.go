package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voicecard/internal/domain"
	"voicecard/internal/pages"
	"voicecard/internal/services"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			stored, err := a.Manager.List(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, publicPages(stored))
			}
			if len(stored) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pages stored")
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(stored))
			for _, p := range stored {
				rows = append(rows, []string{
					p.Code,
					pageState(p, now),
					fmt.Sprintf("%d/%d", p.PlayCount, p.MaxPlays),
					yesNo(p.IsPersonalized),
					yesNo(p.IsTest),
					p.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"CODE", "STATE", "PLAYS", "PERSONALIZED", "TEST", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Show a single page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			stored, err := a.Manager.Get(cmd.Context(), pages.NormalizeCode(args[0]))
			if err != nil {
				return err
			}
			page := stored.Public()
			if ctx.jsonOutput() {
				return writeJSON(cmd, page)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Code:          %s\n", page.Code)
			fmt.Fprintf(out, "State:         %s\n", pageState(page, time.Now()))
			fmt.Fprintf(out, "URL:           %s\n", page.PageURL)
			fmt.Fprintf(out, "Title:         %s\n", page.Title)
			fmt.Fprintf(out, "Plays:         %d/%d\n", page.PlayCount, page.MaxPlays)
			fmt.Fprintf(out, "Personalized:  %s\n", yesNo(page.IsPersonalized))
			fmt.Fprintf(out, "PIN:           %s\n", yesNo(page.HasPin))
			fmt.Fprintf(out, "Test:          %s\n", yesNo(page.IsTest))
			fmt.Fprintf(out, "Expires:       %s\n", page.ExpirationDate.Format(time.RFC3339))
			return nil
		},
	}
}

func newProvisionCommand(ctx *commandContext) *cobra.Command {
	var pdfPath string

	cmd := &cobra.Command{
		Use:   "provision <quantity>",
		Short: "Create a batch of blank pages ready to be printed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("%w: quantity must be a number", domain.ErrValidation)
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			created, err := a.Bulk.Provision(cmd.Context(), quantity)
			if err != nil {
				return err
			}

			if pdfPath != "" {
				if err := writeSheet(a.Sheet, pdfPath, created); err != nil {
					return err
				}
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, publicPages(created))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Provisioned %d pages\n", len(created))
			for _, p := range created {
				fmt.Fprintf(out, "  %s  %s\n", p.Code, p.PageURL)
			}
			if pdfPath != "" {
				fmt.Fprintf(out, "Print sheet written to %s\n", pdfPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Write a printable QR sheet to this path")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a page and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			code := pages.NormalizeCode(args[0])
			found, err := a.Manager.Delete(cmd.Context(), code)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", domain.ErrNotFound, code)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", code)
			return nil
		},
	}
}

func newProtectCommand(ctx *commandContext, protect bool) *cobra.Command {
	use, short, verb := "protect <code>", "Mark a page as a test page", "Protected"
	if !protect {
		use, short, verb = "unprotect <code>", "Clear the test flag on a page", "Unprotected"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			code := pages.NormalizeCode(args[0])
			page, err := a.Manager.SetTest(cmd.Context(), code, protect)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, page.Public())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, page.Code)
			return nil
		},
	}
}

func newDemoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Reset the demo page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			page, err := a.Demo.GetOrCreate(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, page.Public())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Demo page reset at %s\n", page.PageURL)
			return nil
		},
	}
}

func writeSheet(sheet *services.PrintSheet, path string, list []domain.AudioPage) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return sheet.Write(f, list)
}

func pageState(p domain.AudioPage, now time.Time) string {
	if p.Destroyed(now) {
		return "destroyed"
	}
	return "live"
}

func publicPages(list []domain.AudioPage) []domain.AudioPage {
	out := make([]domain.AudioPage, len(list))
	for i, p := range list {
		out[i] = p.Public()
	}
	return out
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
