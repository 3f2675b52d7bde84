package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAccessCmd creates the access command group
func NewAccessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Dashboard allow-list checks",
	}
	cmd.AddCommand(newAccessCheckCmd())
	return cmd
}

func newAccessCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [address]",
		Short: "Check whether an address may use the dashboard",
		Long: `Look up an address in the allow-list, or the connected wallet when none
is given. Malformed addresses, unknown addresses and store failures are all
reported as not authorized.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := GetApp()
			if err != nil {
				return err
			}
			defer a.Close()

			gate, err := a.Gate(ctx)
			if err != nil {
				return err
			}

			var addr string
			if len(args) == 1 {
				addr = args[0]
			} else {
				sess, err := requireSession(ctx, a)
				if err != nil {
					return err
				}
				addr = sess.AddressHex()
			}

			acc := gate.CheckAccess(ctx, addr)
			if jsonOutput() {
				acc.Record = nil
				return printJSON(acc)
			}

			state := "failed"
			switch {
			case acc.Active:
				state = "active"
			case acc.Authorized:
				state = statusLabel(acc.Status)
			}
			fields := [][2]string{
				{"Address", addr},
				{"Access", StatusBadge(state)},
			}
			if acc.Authorized {
				fields = append(fields, [2]string{"Admin", fmt.Sprintf("%t", acc.Admin)})
				if acc.Record != nil && acc.Record.UserType != nil {
					fields = append(fields, [2]string{"Type", acc.Record.UserType.Name})
				}
			}
			fmt.Println(StatusBox("Allow-list", fields))
			return nil
		},
	}
}
