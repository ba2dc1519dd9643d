package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"stylegen/internal/domain"
	"stylegen/internal/providers/image"
	"stylegen/internal/styles"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	file   string
	lookup string
}

func newRootCmd(out io.Writer, logger zerolog.Logger) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "stylectl",
		Short:         "Inspect and exercise style profile files offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.file, "file", "f", envOr("STYLE_PROFILES_PATH", "styleProfiles.json"), "style profile JSON file")
	root.PersistentFlags().StringVar(&opts.lookup, "lookup", envOr("STYLE_LOOKUP", string(styles.LookupStrict)), "unknown style handling: strict or lenient")

	root.AddCommand(
		newListCmd(opts),
		newValidateCmd(opts, logger),
		newComposeCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*styles.Catalog, error) {
	return styles.Load(o.file, styles.ParseLookupMode(o.lookup))
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print style ids and names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := opts.load()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTEMPLATE")
			for _, id := range cat.IDs() {
				def, _ := cat.Get(id)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", id, def.Name, image.SelectTemplate(def))
			}
			return tw.Flush()
		},
	}
}

func newValidateCmd(opts *rootOptions, logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the profile file and report configuration errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := opts.load()
			if err != nil {
				logger.Error().Err(err).Str("file", opts.file).Str("kind", string(domain.KindOf(err))).Msg("style profiles invalid")
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d styles OK\n", opts.file, cat.Len())
			return nil
		},
	}
}

func newComposeCmd(opts *rootOptions) *cobra.Command {
	var (
		styleID string
		prompt  string
		colors  [domain.MaxColors]string
		edit    bool
	)
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Print the provider prompt a style would produce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := opts.load()
			if err != nil {
				return err
			}
			def, err := cat.Lookup(styleID)
			if err != nil {
				return err
			}
			mode := domain.ModeGenerate
			if edit {
				mode = domain.ModeEdit
			}
			comp := image.Compose(image.ComposeInput{
				Style:  def,
				Prompt: strings.TrimSpace(prompt),
				Colors: colors,
				Mode:   mode,
			})
			w := cmd.OutOrStdout()
			if comp.Template == image.TemplateRefine {
				fmt.Fprintf(w, "instruction: %s\n", comp.Instruction)
			}
			fmt.Fprintln(w, comp.Prompt)
			return nil
		},
	}
	cmd.Flags().StringVarP(&styleID, "style", "s", "", "style id")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "user prompt")
	for i := range colors {
		cmd.Flags().StringVar(&colors[i], fmt.Sprintf("color%d", i+1), "", fmt.Sprintf("color slot %d", i+1))
	}
	cmd.Flags().BoolVar(&edit, "edit", false, "compose for the edit operation")
	_ = cmd.MarkFlagRequired("style")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
