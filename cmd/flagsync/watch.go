package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/flagsync/pkg/flagstore"
)

func newWatchCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print flag changes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := open(ctx, f)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			out := cmd.OutOrStdout()
			id := s.env.RegisterStoreListener(func(changes []flagstore.Change) {
				flags := s.env.AllFlags()
				for _, ch := range changes {
					if ch.Type == flagstore.ChangeDelete {
						fmt.Fprintf(out, "%s\tdeleted\n", ch.Key)
						continue
					}
					v, _ := json.Marshal(flags[ch.Key])
					fmt.Fprintf(out, "%s\t%s\n", ch.Key, v)
				}
			})
			defer s.env.UnregisterFlagListener(id)

			fmt.Fprintf(out, "watching %s, press Ctrl+C to stop\n", s.env.Name())
			<-ctx.Done()
			return nil
		},
	}
}
