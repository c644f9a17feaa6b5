package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"visforge/cmd/forgecheck/ui"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check game data for broken references, cycles and duplicates",
		Long:  "Validate a JSON or YAML game data file, or the embedded content when no file is given. Exits non-zero when problems are found.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			data, problems, err := loadData(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			name := path
			if name == "" {
				name = "embedded data"
			}
			fmt.Fprintln(out, ui.Heading(ui.IconScroll, "Validating "+name))
			fmt.Fprintln(out, ui.LabelValue("Recipe categories", len(data.Catalog.Categories())))
			fmt.Fprintln(out, ui.LabelValue("Unlock nodes", data.Tree.Len()))
			fmt.Fprintln(out, ui.LabelValue("Quest lines", len(data.QuestLines())))
			fmt.Fprintln(out, ui.LabelValue("Upgrades", len(data.Upgrades())))
			fmt.Fprintln(out, "")

			if len(problems) == 0 {
				fmt.Fprintln(out, ui.Good.Render(ui.IconOK+" no problems found"))
				return nil
			}
			fmt.Fprintln(out, ui.H2.Render(fmt.Sprintf("%s %d problems", ui.IconWarn, len(problems))))
			for _, problem := range problems {
				fmt.Fprintf(out, "- %s\n", ui.Warn.Render(problem.Error()))
			}
			return fmt.Errorf("%s: %d problems found", name, len(problems))
		},
	}

	return cmd
}
