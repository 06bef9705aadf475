package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/colony-launcher/colony/internal/catalog"
	clierrors "github.com/colony-launcher/colony/internal/errors"
	"github.com/colony-launcher/colony/internal/output"
	"github.com/colony-launcher/colony/internal/prompt"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage registered containers",
		Long:  `List, add, and remove the container images kept in the launcher catalog.`,
	}

	cmd.AddCommand(newCatalogListCmd())
	cmd.AddCommand(newCatalogAddCmd())
	cmd.AddCommand(newCatalogRemoveCmd())

	return cmd
}

func newCatalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered containers",
		Long:  `Display every container in the catalog with its id, path, and known apps.`,
		Example: `  colony catalog list
  colony catalog list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			cat, err := e.loadCatalog()
			if err != nil {
				return err
			}

			if out.JSON {
				return out.PrintJSON(cat)
			}

			if len(cat.Containers) == 0 {
				out.Muted("No containers registered.")
				out.Muted("  Run 'colony catalog add <path>' to register one")

				return nil
			}

			table := output.NewTable("ID", "PATH", "TITLE", "APPS")
			table.MaxCellWidth = 60

			for _, d := range cat.Containers {
				table.Row(d.ID.String(), d.Path, d.Title, strings.Join(d.Apps, ","))
			}

			return out.Table(table)
		},
	}
}

func newCatalogAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Register a container image",
		Long:  `Add a container image to the catalog. Adding a path that is already registered keeps its id.`,
		Example: `  colony catalog add ./tools/align.sif
  colony catalog add /mnt/c/images/qc.sif`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			cat, err := e.loadCatalog()
			if err != nil {
				return err
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return clierrors.CatalogFailed("update", err)
			}

			d, created, err := cat.AddContainer(path)
			if err != nil {
				return clierrors.CatalogFailed("update", err)
			}

			if err := cat.Save(e.catalogPath()); err != nil {
				return clierrors.CatalogFailed("save", err)
			}

			if out.JSON {
				return out.PrintJSON(d)
			}

			if created {
				out.Success("Added %s (%s)", d.Path, d.ID)
			} else {
				out.Info("Already registered: %s (%s)", d.Path, d.ID)
			}

			return nil
		},
	}
}

func newCatalogRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "remove [id-or-path]",
		Aliases: []string{"rm"},
		Short:   "Remove a container from the catalog",
		Long: `Remove one container from the catalog by id or path. The image file is left
in place. Without an argument the container is picked from a list.`,
		Example: `  colony catalog remove 3f1c2a9e-6a52-4c1e-9d0b-2b7c1f6f8e11
  colony catalog remove /mnt/c/images/qc.sif --force
  colony catalog remove`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			cat, err := e.loadCatalog()
			if err != nil {
				return err
			}

			prompter := prompt.New(out)

			var (
				d  catalog.Descriptor
				ok bool
			)

			if len(args) == 0 {
				if !prompter.CanPrompt() {
					return clierrors.New(clierrors.ExitUsage, "No container given").
						WithHint("Pass a container id or path, or run interactively to pick one")
				}

				if len(cat.Containers) == 0 {
					out.Muted("No containers registered.")
					return nil
				}

				idx, err := prompter.Select("Registered containers:", cat.Paths())
				if err != nil {
					return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read selection", err)
				}

				d, ok = cat.Containers[idx], true
			} else {
				d, ok = lookupContainer(cat, args[0])
				if !ok {
					return clierrors.ContainerNotFound(args[0])
				}
			}

			if !force {
				if !prompter.CanPrompt() {
					return clierrors.New(clierrors.ExitUsage, "Cannot confirm removal in non-interactive mode").
						WithHint("Use --force to skip confirmation")
				}

				confirmed, err := prompter.Confirm(fmt.Sprintf("Remove %s from the catalog?", d.Path), false)
				if err != nil {
					return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read confirmation", err)
				}

				if !confirmed {
					out.Info("Removal canceled")
					return nil
				}
			}

			cat.RemoveContainer(d.ID)

			if err := cat.Save(e.catalogPath()); err != nil {
				return clierrors.CatalogFailed("save", err)
			}

			out.Success("Removed %s", d.Path)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

// lookupContainer resolves ref as an id, a catalog path, or a path relative
// to the working directory.
func lookupContainer(cat *catalog.Catalog, ref string) (catalog.Descriptor, bool) {
	if d, ok := cat.Lookup(ref); ok {
		return d, true
	}

	abs, err := filepath.Abs(ref)
	if err != nil {
		return catalog.Descriptor{}, false
	}

	return cat.Lookup(abs)
}
