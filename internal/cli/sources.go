package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and their current reliability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Sources) == 0 {
			fmt.Println("No sources configured. Add sources to ~/.tectonic/config.yaml.")
			return nil
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tKIND\tCONTENT\tCREDIBILITY\tRELIABILITY")
		for _, src := range cfg.Sources {
			if src.ID == "" {
				src.ID = "-"
			}
			reliability := "-"
			if stored, err := st.GetSource(src.ID); err == nil && stored.DynamicReliability > 0 {
				reliability = fmt.Sprintf("%.2f", stored.DynamicReliability)
			}
			credibility := "-"
			if src.Credibility > 0 {
				credibility = fmt.Sprintf("%.2f", src.Credibility)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				src.ID, src.Name, src.Kind, src.ContentType, credibility, reliability)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
