package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/stepwise"
)

func flowsCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List the built-in flows and their steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := st.out(cmd)
			for _, f := range stepwise.Flows() {
				fmt.Fprintf(out, "%s\n", f.Name)
				for _, s := range f.Steps {
					var marks []string
					if s.Skip != nil {
						marks = append(marks, "skippable")
					}
					unique := make([]string, 0, len(s.Unique))
					for field := range s.Unique {
						unique = append(unique, "unique "+field)
					}
					sort.Strings(unique)
					marks = append(marks, unique...)
					if s.Enrich != nil {
						marks = append(marks, "enriched")
					}
					line := fmt.Sprintf("  %d %s: %s", s.Index+1, s.ID, strings.Join(s.Fields, ", "))
					if len(marks) > 0 {
						line += " [" + strings.Join(marks, "; ") + "]"
					}
					fmt.Fprintln(out, line)
				}
				calls := f.PlannedCalls()
				names := make([]string, len(calls))
				for i, c := range calls {
					names[i] = string(c)
				}
				fmt.Fprintf(out, "  calls: %s\n", strings.Join(names, " -> "))
			}
			return nil
		},
	}
}
