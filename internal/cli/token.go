package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/strefethen/sonos-multiroom-go/internal/auth"
	"github.com/strefethen/sonos-multiroom-go/internal/config"
)

// TokenOutput is the json form of a minted token pair.
type TokenOutput struct {
	SurfaceID    string `json:"surface_id"`
	SurfaceName  string `json:"surface_name"`
	Scope        string `json:"scope"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// NewTokenCommand creates the token command, which mints credentials for
// a control surface without the pairing flow.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var surfaceName, scopeFlag string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a control surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			scope, err := auth.ParseScope(scopeFlag)
			if err != nil {
				return err
			}
			out := TokenOutput{SurfaceID: uuid.NewString(), SurfaceName: surfaceName, Scope: string(scope)}
			pair, err := auth.GenerateTokenPair(cfg, auth.TokenPayload{Sub: out.SurfaceID, SurfaceName: surfaceName, Scope: scope})
			if err != nil {
				return err
			}
			out.AccessToken, out.RefreshToken, out.ExpiresIn = pair.AccessToken, pair.RefreshToken, pair.ExpiresInSec

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "surface:  %s (%s, %s)\naccess:   %s\nrefresh:  %s\nexpires:  %ds\n",
				out.SurfaceName, out.SurfaceID, out.Scope, out.AccessToken, out.RefreshToken, out.ExpiresIn)
			return err
		},
	}
	cmd.Flags().StringVar(&surfaceName, "surface", "CLI", "surface name embedded in the token")
	cmd.Flags().StringVar(&scopeFlag, "scope", string(auth.ScopeControl), "surface scope: control or monitor")
	return cmd
}
