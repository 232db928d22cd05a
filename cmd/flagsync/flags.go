package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newFlagsCommand(f *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Print the current flag values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := open(ctx, f)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			flags := s.env.AllFlags()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(flags)
			}
			for _, key := range slices.Sorted(maps.Keys(flags)) {
				v, err := json.Marshal(flags[key])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\n", key, v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON object")
	return cmd
}
