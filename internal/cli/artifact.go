package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/store"
	"github.com/spf13/cobra"
)

var artifactOpts struct {
	id           string
	kind         string
	version      string
	conversation string
}

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Manage versioned artifacts",
}

var artifactPutCmd = &cobra.Command{
	Use:   "put <file|->",
	Short: "Create or update an artifact from a file or stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactPut,
}

var artifactShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an artifact at its current or a given version",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactShow,
}

var artifactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts",
	Args:  cobra.NoArgs,
	RunE:  runArtifactList,
}

var artifactPinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Record in a conversation that the model has seen an artifact",
	Long: `Append an anchor for the artifact's current version to the conversation.
Later prompts in that conversation report every change made to the artifact
since, with a unified diff.`,
	Args: cobra.ExactArgs(1),
	RunE: runArtifactPin,
}

func init() {
	artifactPutCmd.Flags().StringVar(&artifactOpts.id, "id", "", "artifact id (generated when empty)")
	artifactPutCmd.Flags().StringVar(&artifactOpts.kind, "kind", "", "artifact kind")
	artifactShowCmd.Flags().StringVar(&artifactOpts.version, "version", "", "version to show, e.g. v1")
	artifactPinCmd.Flags().StringVarP(&artifactOpts.conversation, "conversation", "c", "default", "transcript key")

	artifactCmd.AddCommand(artifactPutCmd, artifactShowCmd, artifactListCmd, artifactPinCmd)
	rootCmd.AddCommand(artifactCmd)
}

func runArtifactPut(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read artifact content: %w", err)
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	art, err := st.PutArtifact(cmd.Context(), artifactOpts.id, artifactOpts.kind, string(data))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", art.ID, art.Version)
	return nil
}

func runArtifactShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.openStore()
	if err != nil {
		return err
	}

	var content string
	if artifactOpts.version != "" {
		content, err = st.Revision(cmd.Context(), args[0], message.ObjectVersion(artifactOpts.version))
	} else {
		var art *store.Artifact
		art, err = st.GetArtifact(cmd.Context(), args[0])
		if err == nil {
			content = art.Content
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), content)
	return nil
}

func runArtifactList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.openStore()
	if err != nil {
		return err
	}
	list, err := st.ListArtifacts(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tVERSION\tUPDATED")
	for _, art := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", art.ID, art.Kind, art.Version, art.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runArtifactPin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.openStore()
	if err != nil {
		return err
	}
	art, err := st.GetArtifact(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	transcripts, err := a.openTranscripts()
	if err != nil {
		return err
	}
	anchor := message.New(message.RoleUser, message.AnchorBlock{ObjectID: art.ID, Version: art.Version})
	if err := transcripts.Append(cmd.Context(), artifactOpts.conversation, anchor); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pinned %s at %s in %s\n", art.ID, art.Version, artifactOpts.conversation)
	return nil
}
