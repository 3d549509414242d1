package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/exporter"
	"product-catalog-migrator/internal/htmlfix"
	"product-catalog-migrator/internal/importer"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/maintenance"
	"product-catalog-migrator/internal/taxonomy"
)

// newImportCmd creates the import subcommand.
func newImportCmd() *cobra.Command {
	var (
		file     string
		status   string
		progress bool
	)
	opts := importer.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON export document into the host store",
		Long: `Import creates or updates one product per row of a JSON array.

Rows are processed in file order. Without --update, rows matching an existing record
are skipped. After the last row, duplicate taxonomy roots of the touched languages are
merged (--merge-parents) and language variants sharing a source id are linked
(--link-siblings). --dry-run writes nothing and reports what would happen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Status = domain.Status(strings.ToLower(strings.TrimSpace(status)))
			if err := opts.Validate(); err != nil {
				return err
			}
			doc, err := importer.LoadDocument(file)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			update, finish := newProgress(progress, "importing")
			o, err := importer.New(a.importDeps(update), opts)
			if err != nil {
				return err
			}
			logger.Info().Str("file", file).Int("rows", len(doc)).Bool("dry_run", opts.DryRun).Msg("import started")
			report, runErr := o.Run(cmd.Context(), doc)
			finish()

			if err := printReport(report, report.Summary(), report.Errors > 0 || runErr != nil); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to the JSON document (required)")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "update records that already exist")
	cmd.Flags().BoolVar(&opts.UpdateIfChanged, "update-if-changed", false, "skip updates that would change nothing")
	cmd.Flags().BoolVar(&opts.IDOnly, "id-only", false, "never create; only update matched records")
	cmd.Flags().BoolVar(&opts.PreferID, "prefer-id", opts.PreferID, "try the row id before other identity strategies")
	cmd.Flags().BoolVar(&opts.PreserveSlug, "preserve-slug", false, "keep the slug of existing records")
	cmd.Flags().BoolVar(&opts.SkipEmpty, "skip-empty", false, "leave fields untouched when the row value is empty")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would happen without writing")
	cmd.Flags().BoolVar(&opts.LinkSiblings, "link-siblings", false, "link language variants sharing a source id")
	cmd.Flags().BoolVar(&opts.MergeParents, "merge-parents", opts.MergeParents, "merge duplicate taxonomy roots after the import")
	cmd.Flags().StringVar(&status, "status", string(opts.Status), "status of rows without a valid status")
	cmd.Flags().Int64Var(&opts.AuthorID, "author", 0, "author id of created records")
	cmd.Flags().StringVar(&opts.TaxLanguage, "tax-language", "", "comma-separated language terms overriding the row's")
	cmd.Flags().StringVar(&opts.CreateSlugSuffix, "create-slug-suffix", "", "suffix appended to the slug of created records")
	cmd.Flags().BoolVar(&progress, "progress", false, "draw a progress bar on stderr")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// newExportCmd creates the export subcommand.
func newExportCmd() *cobra.Command {
	var (
		lng string
		out string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the products of one language as a JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			e := exporter.New(a.store, a.linking, exporter.Config{
				Taxonomies:  []string{cfg.Taxonomy.Category, cfg.Taxonomy.Attribute, cfg.Taxonomy.Language},
				Translated:  []string{cfg.Taxonomy.Category, cfg.Taxonomy.Attribute},
				LanguageTax: cfg.Taxonomy.Language,
				BaseURL:     cfg.BaseURL,
			}, logger)
			rows, err := e.Export(cmd.Context(), lng)
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := exporter.Write(w, rows); err != nil {
				return err
			}
			logger.Info().Str("lang", lng).Int("rows", len(rows)).Str("out", out).Msg("export written")
			return nil
		},
	}

	cmd.Flags().StringVar(&lng, "lang", "", "language to export (required)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

// parseStatuses reads a comma-separated status list.
func parseStatuses(csv string, allowTrash bool) ([]domain.Status, error) {
	var out []domain.Status
	for _, part := range strings.Split(csv, ",") {
		s := domain.Status(strings.ToLower(strings.TrimSpace(part)))
		if s == "" {
			continue
		}
		if !s.IsAllowed() && !(allowTrash && s == domain.StatusTrash) {
			return nil, fmt.Errorf("invalid status %q", s)
		}
		out = append(out, s)
	}
	return out, nil
}

// newDeleteLangCmd creates the delete-lang subcommand.
func newDeleteLangCmd() *cobra.Command {
	var (
		opts     maintenance.DeleteOptions
		statuses string
	)

	cmd := &cobra.Command{
		Use:   "delete-lang",
		Short: "Trash or delete every product of a language",
		Long: `delete-lang removes the products of one language, found through the translation
linker or, without one, through the language taxonomy.

--dry-run lists them, --trash moves them to the trash, --force deletes them permanently.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Statuses, err = parseStatuses(statuses, true); err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			svc := maintenance.NewService(a.store, a.store, a.linking, cfg.Taxonomy.Language, logger)
			tick, finish := newSpinner("deleting")
			svc.Tick = tick
			report, err := svc.DeleteByLanguage(cmd.Context(), opts)
			finish()
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("Matched: %d | Trashed: %d | Deleted: %d | Failed: %d",
				report.Matched, report.Trashed, report.Deleted, report.Failed)
			return printReport(report, summary, report.Failed > 0)
		},
	}

	cmd.Flags().StringVar(&opts.Lang, "lang", "", "language to remove (required)")
	cmd.Flags().StringVar(&statuses, "status", "", "comma-separated statuses to include (default all but trash)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list matching products without changing them")
	cmd.Flags().BoolVar(&opts.Trash, "trash", false, "move products to the trash")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "delete products permanently")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

// newNormalizeParentsCmd creates the normalize-parents subcommand.
func newNormalizeParentsCmd() *cobra.Command {
	var (
		lng    string
		tax    string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "normalize-parents",
		Short: "Merge duplicate taxonomy roots into their canonical label",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if tax == "" {
				tax = cfg.Taxonomy.Attribute
			}
			report, err := a.reconciler.MergeRoots(cmd.Context(), tax, lang.Normalize(lng), dryRun)
			if err != nil {
				return err
			}
			return printReport(report, mergeSummary(report), false)
		},
	}

	cmd.Flags().StringVar(&lng, "lang", "", "language whose roots are merged (required)")
	cmd.Flags().StringVar(&tax, "taxonomy", "", "taxonomy to normalize (default the attribute taxonomy)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned changes without writing")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func mergeSummary(r taxonomy.MergeReport) string {
	s := fmt.Sprintf("%s/%s: Renamed: %d | Reparented: %d | Deleted: %d", r.Taxonomy, r.Lang, r.Renamed, r.Reparented, r.Deleted)
	if r.DryRun {
		s += " (dry run)"
	}
	return s
}

// newRestoreAttrsCmd creates the restore-attrs subcommand.
func newRestoreAttrsCmd() *cobra.Command {
	var (
		file   string
		lng    string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "restore-attrs",
		Short: "Rebuild attribute terms of existing products from their metadata slots",
		Long: `restore-attrs re-reads an export document and, for every row matching an existing
record, rebuilds its attribute memberships from the metadata slots of the row.
The language comes from --lang, the rows, or a file name like products_fr.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := importer.LoadDocument(file)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := importer.New(a.importDeps(nil), importer.DefaultOptions())
			if err != nil {
				return err
			}
			code, err := o.RestoreLanguage(lng, doc, file)
			if err != nil {
				return err
			}
			report, err := o.RestoreAttributes(cmd.Context(), doc, code, dryRun)
			if perr := printReport(report, report.Summary(), report.Errors > 0); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to the JSON document (required)")
	cmd.Flags().StringVar(&lng, "lang", "", "language of the document")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned assignments without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// newSetMissingLangCmd creates the set-missing-lang subcommand.
func newSetMissingLangCmd() *cobra.Command {
	var (
		lng    string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "set-missing-lang",
		Short: "Tag every product without a language",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			svc := maintenance.NewService(a.store, a.store, a.linking, cfg.Taxonomy.Language, logger)
			tick, finish := newSpinner("tagging")
			svc.Tick = tick
			report, err := svc.SetMissingLanguage(cmd.Context(), lng, dryRun)
			finish()
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("Affected: %d | Already tagged: %d", report.Affected, report.AlreadyTagged)
			return printReport(report, summary, false)
		},
	}

	cmd.Flags().StringVar(&lng, "lang", "", "language to assign (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count products without tagging them")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

// newFixLiPCmd creates the fix-li-p subcommand.
func newFixLiPCmd() *cobra.Command {
	var (
		opts     htmlfix.Options
		statuses string
	)

	cmd := &cobra.Command{
		Use:   "fix-li-p",
		Short: "Unwrap paragraphs nested in list items of product content",
		Long: `fix-li-p rewrites <li><p>text</p></li> into <li>text</li> in product content.
Without --run it only reports what would change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Statuses, err = parseStatuses(statuses, false); err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			fixer := htmlfix.NewFixer(a.store, logger)
			tick, finish := newSpinner("scanning")
			fixer.Tick = tick
			report, err := fixer.Run(cmd.Context(), opts)
			finish()
			if err != nil && cmd.Context().Err() == nil {
				return err
			}
			summary := fmt.Sprintf("Scanned: %d | Changed: %d | Unwrapped: %d | Errors: %d",
				report.Scanned, report.Changed, report.Unwrapped, report.Errors)
			if !opts.Run {
				summary += " (dry run)"
			}
			if perr := printReport(report, summary, report.Errors > 0); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.Run, "run", false, "write the changes")
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "only this product")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many products")
	cmd.Flags().StringVar(&statuses, "status", "", "comma-separated statuses to include")
	cmd.Flags().IntVar(&opts.Batch, "batch", 200, "products read per page")
	return cmd
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the catalog schema to the Postgres host store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.pg == nil {
				return errors.New("migrate requires STORE_DRIVER=postgres")
			}
			if err := a.pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info().Msg("schema applied")
			return nil
		},
	}
}
