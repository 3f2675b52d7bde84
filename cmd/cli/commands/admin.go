package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/internal/app"
	"github.com/stakeport/stakeport/internal/authz"
	"github.com/stakeport/stakeport/internal/chain"
	"github.com/stakeport/stakeport/pkg/types"
)

// NewAdminCmd creates the admin command group
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Owner and allow-list administration",
		Long: `Contract owner operations and allow-list management.

Owner checks here only decide what is offered; the contracts enforce
ownership themselves. Allow-list changes require the connected wallet to
hold an active admin entry.`,
	}

	cmd.AddCommand(newAdminOwnerCmd())
	cmd.AddCommand(newAdminWithdrawCmd())
	cmd.AddCommand(newAdminWithdrawAllCmd())
	cmd.AddCommand(newAdminReserveCmd())
	cmd.AddCommand(newAdminUsersCmd())
	cmd.AddCommand(newAdminSchemaCmd())

	return cmd
}

func newAdminOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owner",
		Short: "Show contract owners and whether the connected wallet is one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			owner, err := sc.Owner(ctx)
			if err != nil {
				return fmt.Errorf("failed to read owner: %w", err)
			}
			fields := [][2]string{{"Staking owner", owner.Hex()}}

			if s, err := a.Strategy(ctx); err == nil {
				if st, err := s.Status(ctx); err == nil {
					fields = append(fields, [2]string{"Strategy owner", st.Owner})
				}
			}

			sessions, err := a.Sessions(ctx)
			if err != nil {
				return err
			}
			if sess := sessions.Session(); sess.Connected {
				isOwner, err := sc.IsOwner(ctx, *sess.Address)
				if err != nil {
					return err
				}
				fields = append(fields, [2]string{"You", sess.AddressHex()}, [2]string{"Is owner", strconv.FormatBool(isOwner)})
			}
			fmt.Println(StatusBox("Owners", fields))
			return nil
		},
	}
}

func newAdminWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <amount>",
		Short: "Withdraw tokens from the staking contract (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			amount, err := parseAmount(args[0], stakingTokenMeta(ctx, sc).decimals)
			if err != nil {
				return err
			}
			if err := requireOwner(ctx, a, sc); err != nil {
				return err
			}
			res, err := sendTx("Withdrawing", func() (*chain.TxResult, error) {
				return sc.AdminWithdraw(ctx, amount)
			})
			return reportTx(ctx, a, res, err)
		},
	}
}

func newAdminWithdrawAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw-all",
		Short: "Withdraw the full token balance of the staking contract (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := requireOwner(ctx, a, sc); err != nil {
				return err
			}
			res, err := sendTx("Withdrawing all", func() (*chain.TxResult, error) {
				return sc.AdminWithdrawAll(ctx)
			})
			return reportTx(ctx, a, res, err)
		},
	}
}

func requireOwner(ctx context.Context, a *app.App, sc *chain.StakingContract) error {
	sess, err := requireSession(ctx, a)
	if err != nil {
		return err
	}
	isOwner, err := sc.IsOwner(ctx, *sess.Address)
	if err != nil {
		return fmt.Errorf("failed to check owner: %w", err)
	}
	if !isOwner {
		return fmt.Errorf("%s is not the staking contract owner", sess.AddressHex())
	}
	return nil
}

func newAdminReserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <address>...",
		Short: "Check the reward reserve against the given stakers' projected rewards",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			tok := sc.Token()
			if tok == nil {
				return fmt.Errorf("staking token not configured")
			}
			plans, err := sc.Plans(ctx)
			if err != nil {
				return fmt.Errorf("failed to read plans: %w", err)
			}
			var positions []types.StakePosition
			for _, arg := range args {
				if !common.IsHexAddress(arg) {
					return fmt.Errorf("invalid address %q", arg)
				}
				ps, err := sc.GetUserStakes(ctx, common.HexToAddress(arg))
				if err != nil {
					return fmt.Errorf("failed to read stakes of %s: %w", arg, err)
				}
				positions = append(positions, ps...)
			}
			bal, err := tok.BalanceOf(ctx, sc.Address())
			if err != nil {
				return fmt.Errorf("failed to read contract balance: %w", err)
			}

			r := chain.ReserveAdequacy(bal, positions, chain.PlanIndex(plans))
			if jsonOutput() {
				return printJSON(r)
			}
			meta := stakingTokenMeta(ctx, sc)
			state := "ok"
			if !r.Adequate {
				state = "warning"
			}
			fmt.Println(StatusBox("Reserve", [][2]string{
				{"Balance", FormatAmount(r.Balance, meta.decimals, meta.symbol)},
				{"Owed", FormatAmount(r.Outstanding, meta.decimals, meta.symbol)},
				{"Coverage", fmt.Sprintf("%.2fx", r.Coverage)},
				{"State", StatusBadge(state)},
			}))
			return nil
		},
	}
}

func newAdminUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the dashboard allow-list",
	}
	cmd.AddCommand(newUsersListCmd())
	cmd.AddCommand(newUsersAddCmd())
	cmd.AddCommand(newUsersStatusCmd())
	cmd.AddCommand(newUsersTypeCmd())
	cmd.AddCommand(newUsersTypesCmd())
	cmd.AddCommand(newUsersAddTypeCmd())
	return cmd
}

// openAdminGate returns the gate once the connected wallet is known to be
// an active admin. The returned actor is used for audit entries.
func openAdminGate(ctx context.Context) (*app.App, *authz.Gate, string, error) {
	a, err := GetApp()
	if err != nil {
		return nil, nil, "", err
	}
	gate, err := a.Gate(ctx)
	if err != nil {
		a.Close()
		return nil, nil, "", err
	}
	sess, err := requireSession(ctx, a)
	if err != nil {
		a.Close()
		return nil, nil, "", err
	}
	actor := sess.AddressHex()
	if !gate.IsAdmin(ctx, actor) {
		a.Close()
		return nil, nil, "", fmt.Errorf("%s is not an active admin", actor)
	}
	return a, gate, actor, nil
}

func recordRow(r types.AuthorizationRecord) []string {
	typeName := "-"
	if r.UserType != nil {
		typeName = r.UserType.Name
	}
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.Local().Format("2006-01-02")
	}
	return []string{r.WalletAddress, r.FirstName + " " + r.LastName, typeName, StatusBadge(statusLabel(r.Status)), created}
}

func statusLabel(s types.UserStatus) string {
	switch s {
	case types.UserStatusActive:
		return "active"
	case types.UserStatusSuspended:
		return "suspended"
	}
	return string(s)
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List allow-list entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, gate, _, err := openAdminGate(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := gate.ListUsers(ctx)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(users)
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, recordRow(u))
			}
			fmt.Println(RenderTable([]string{"WALLET", "NAME", "TYPE", "STATUS", "ADDED"}, rows))
			return nil
		},
	}
}

func newUsersAddCmd() *cobra.Command {
	var (
		firstName string
		lastName  string
		status    string
		typeID    int64
	)
	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Add an allow-list entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, gate, actor, err := openAdminGate(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := gate.AddUser(ctx, actor, authz.NewUser{
				WalletAddress: args[0],
				FirstName:     firstName,
				LastName:      lastName,
				Status:        types.UserStatus(status),
				UserTypeID:    typeID,
			})
			if err != nil {
				return err
			}
			Success("Added " + rec.WalletAddress)
			return nil
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&status, "status", string(types.UserStatusActive), "Active, Suspended or Inactive")
	cmd.Flags().Int64Var(&typeID, "type", 0, "User type id (see: admin users types)")
	return cmd
}

func newUsersStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "status <address> <Active|Suspended|Inactive>",
		Short:             "Change an entry's status",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeUserStatus,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, gate, actor, err := openAdminGate(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := gate.UpdateStatus(ctx, actor, args[0], types.UserStatus(args[1]))
			if err != nil {
				return err
			}
			Success(fmt.Sprintf("%s is now %s", rec.WalletAddress, rec.Status))
			return nil
		},
	}
}

func newUsersTypeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "type <address> <type-id>",
		Short: "Change an entry's user type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid type id %q", args[1])
			}

			ctx := cmd.Context()
			a, gate, actor, err := openAdminGate(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := gate.UpdateType(ctx, actor, args[0], id)
			if err != nil {
				return err
			}
			Success(fmt.Sprintf("%s now has type %d", rec.WalletAddress, rec.UserTypeID))
			return nil
		},
	}
}

func newUsersTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List user types",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, gate, _, err := openAdminGate(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			uts, err := gate.UserTypes(ctx)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(uts)
			}
			rows := make([][]string, 0, len(uts))
			for _, ut := range uts {
				rows = append(rows, []string{strconv.FormatInt(ut.ID, 10), ut.Name, strconv.FormatBool(ut.IsAdmin)})
			}
			fmt.Println(RenderTable([]string{"ID", "NAME", "ADMIN"}, rows))
			return nil
		},
	}
}

func newUsersAddTypeCmd() *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "add-type <name>",
		Short: "Create a user type (postgres backend only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, _, err := openAdminGate(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.CreateUserType(ctx, types.UserType{Name: args[0], IsAdmin: admin})
			if err != nil {
				return err
			}
			Success(fmt.Sprintf("Created user type %q with id %d", args[0], id))
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin rights")
	return cmd
}

func newAdminSchemaCmd() *cobra.Command {
	var firstAdmin string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the allow-list tables (postgres backend only)",
		Long: `Create the allow-list tables if they do not exist yet. This is the
bootstrap step, so it does not require an admin entry. With --admin the
given wallet is added as the first admin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if firstAdmin != "" && !authz.ValidAddress(firstAdmin) {
				return fmt.Errorf("invalid address %q", firstAdmin)
			}

			ctx := cmd.Context()
			a, err := GetApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.EnsureSchema(ctx); err != nil {
				return err
			}
			Success("Allow-list schema is in place")
			if firstAdmin == "" {
				return nil
			}

			typeID, err := a.CreateUserType(ctx, types.UserType{Name: "admin", IsAdmin: true})
			if err != nil {
				return fmt.Errorf("failed to create admin type: %w", err)
			}
			gate, err := a.Gate(ctx)
			if err != nil {
				return err
			}
			rec, err := gate.AddUser(ctx, "bootstrap", authz.NewUser{
				WalletAddress: firstAdmin,
				Status:        types.UserStatusActive,
				UserTypeID:    typeID,
			})
			if err != nil {
				return err
			}
			Success("Added admin " + rec.WalletAddress)
			return nil
		},
	}
	cmd.Flags().StringVar(&firstAdmin, "admin", "", "Wallet address to add as the first admin")
	return cmd
}
