package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/harun/colloquy/pkg/blueprint"
	"github.com/spf13/cobra"
)

var blueprintCmd = &cobra.Command{
	Use:   "blueprint",
	Short: "Inspect blueprints and manage their stored sources",
}

var blueprintListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blueprints in the blueprint directory",
	Args:  cobra.NoArgs,
	RunE:  runBlueprintList,
}

var blueprintShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Render a blueprint's instructions",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlueprintShow,
}

var blueprintPutCmd = &cobra.Command{
	Use:   "put-source <ref> <file>",
	Short: "Store a template source in the database",
	Long: `Store the contents of file under ref. Blueprints whose instructions name
ref as their source render from it when no file of that name exists in the
blueprint directory.`,
	Args: cobra.ExactArgs(2),
	RunE: runBlueprintPut,
}

func init() {
	blueprintCmd.AddCommand(blueprintListCmd, blueprintShowCmd, blueprintPutCmd)
	rootCmd.AddCommand(blueprintCmd)
}

func runBlueprintList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lib, err := a.openLibrary()
	if err != nil {
		return err
	}
	if lib == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "No blueprint directory at %s\n", a.cfg.Blueprints.Dir)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tDESCRIPTION")
	for _, bp := range lib.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", bp.Key, bp.Name, bp.Description)
	}
	return w.Flush()
}

func runBlueprintShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lib, err := a.openLibrary()
	if err != nil {
		return err
	}
	if lib == nil {
		return fmt.Errorf("no blueprint directory at %s", a.cfg.Blueprints.Dir)
	}
	bp, ok := lib.Get(args[0])
	if !ok {
		return fmt.Errorf("blueprint not found: %s", args[0])
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}

	text, err := blueprint.NewLoader(blueprint.Databases{lib, st}).Render(cmd.Context(), bp)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runBlueprintPut(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	if err := st.PutSource(cmd.Context(), args[0], string(data)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored source %s\n", args[0])
	return nil
}
