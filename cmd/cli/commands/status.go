package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StatusResponse is the --output json shape of the status command.
type StatusResponse struct {
	Connected  bool   `json:"connected"`
	Address    string `json:"address,omitempty"`
	ChainID    string `json:"chain_id,omitempty"`
	Configured string `json:"configured_chain_id"`
	Mismatch   bool   `json:"chain_mismatch"`
}

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show wallet session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := GetApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			sess := sessions.Session()
			want := a.Config.Network.ChainID

			resp := StatusResponse{
				Connected:  sess.Connected,
				Address:    sess.AddressHex(),
				Configured: fmt.Sprintf("%d", want),
			}
			if sess.ChainID != nil {
				resp.ChainID = sess.ChainID.String()
				resp.Mismatch = sess.ChainID.Int64() != want
			}
			if jsonOutput() {
				return printJSON(resp)
			}

			if !sess.Connected {
				fmt.Println(StatusBox("Session", [][2]string{
					{"State", StatusBadge("disconnected")},
				}))
				fmt.Println(Hint("Connect with: stakeport connect"))
				return nil
			}
			fmt.Println(StatusBox("Session", [][2]string{
				{"State", StatusBadge("connected")},
				{"Address", sess.AddressHex()},
				{"Chain", chainLabel(sess.ChainID)},
			}))
			if resp.Mismatch {
				Warning(fmt.Sprintf("Wallet is not on the configured chain %d", want))
				fmt.Println(Hint("Switch with: stakeport network switch " + resp.Configured))
			}
			return nil
		},
	}
}
