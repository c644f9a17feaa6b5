package root

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"visforge/cmd/forgecheck/ui"
	"visforge/forge"
)

func newTreeCmd() *cobra.Command {
	var savePath string

	cmd := &cobra.Command{
		Use:   "tree [file]",
		Short: "Print the unlock tree in dependency order",
		Long:  "Print every unlock node after its prerequisites. With --save the node states of that save are shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			data, _, err := loadData(path)
			if err != nil {
				return err
			}

			var ctrl *forge.Controller
			if savePath != "" {
				save, err := readSave(savePath, data.Economy.PrimaryCurrency)
				if err != nil {
					return err
				}
				ctrl = forge.NewController(data, save, forge.WithLogger(logger))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconTree, "Unlock tree"))
			ordered, cyclic := data.Tree.TopologicalOrder()
			depth := make(map[string]int, len(ordered))
			for _, node := range ordered {
				d := 0
				for _, pre := range node.Prerequisites {
					if pd, ok := depth[pre]; ok && pd+1 > d {
						d = pd + 1
					}
				}
				depth[node.ID] = d
				fmt.Fprintln(out, ui.Indent(renderNode(node, ctrl), d))
			}

			if len(cyclic) > 0 {
				fmt.Fprintln(out, "")
				fmt.Fprintln(out, ui.Bad.Render("Never unlockable (prerequisite cycle):"))
				for _, id := range cyclic {
					fmt.Fprintf(out, "- %s\n", id)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&savePath, "save", "", "save file whose node states to show")

	return cmd
}

func renderNode(node *forge.UnlockNode, ctrl *forge.Controller) string {
	var b strings.Builder
	b.WriteString(ui.Key.Render(node.ID))
	if node.Name != "" && node.Name != node.ID {
		b.WriteString(" " + node.Name)
	}
	if node.Category != "" {
		b.WriteString(" " + ui.Muted.Render("["+node.Category+"]"))
	}
	if ctrl != nil {
		b.WriteString(" " + ui.NodeState(string(ctrl.Graph().State(node.ID))))
	}

	var details []string
	if node.StartUnlocked {
		details = append(details, "starts unlocked")
	} else if !node.Cost.IsZero() {
		details = append(details, "cost "+ui.Vis.Render(node.Cost.String()))
	}
	if len(node.Prerequisites) > 0 {
		details = append(details, "requires "+strings.Join(node.Prerequisites, ", "))
	}
	if len(node.Rewards) > 0 {
		rewards := make([]string, 0, len(node.Rewards))
		for _, reward := range node.Rewards {
			rewards = append(rewards, reward.String())
		}
		details = append(details, "grants "+strings.Join(rewards, ", "))
	}
	if len(details) > 0 {
		b.WriteString("\n  " + ui.Muted.Render(strings.Join(details, "; ")))
	}
	return b.String()
}
