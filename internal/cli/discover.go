package cli

import (
	"fmt"
	"log"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/strefethen/sonos-multiroom-go/internal/discovery"
)

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := discovery.Options{}
	var all bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List zone players on the network",
		Long: `Search the network for zone players and print the rooms a zone file
can name. Bonded satellites and subwoofers are hidden unless --all is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
			players, err := discovery.DiscoverPlayers(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if !all {
				players = discovery.ZoneMasters(players)
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), players)
			}
			return printPlayers(cmd, players)
		},
	}

	cmd.Flags().IntVar(&opts.Passes, "passes", 3, "SSDP search passes")
	cmd.Flags().DurationVar(&opts.PassInterval, "pass-interval", 2*time.Second, "delay between passes")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "SSDP listen timeout")
	cmd.Flags().StringSliceVar(&opts.KnownHosts, "host", nil, "probe this host as well (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "include players that are not zone masters")
	return cmd
}

func printPlayers(cmd *cobra.Command, players []*discovery.Player) error {
	if len(players) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "No players found")
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tHOST\tMODEL\tUUID\tHOME THEATER")
	for _, p := range players {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", p.RoomName, p.Host, p.Model, p.UUID, p.HTControl)
	}
	return w.Flush()
}
