package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/pkg/types"
)

// NewCompletionCmd creates the completion command for shell auto-completion.
func NewCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for stakeport.

Besides command and flag names, the scripts complete network names for
"network switch" and allow-list statuses for "admin users status".

To load completions:

Bash:
  $ source <(stakeport completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ stakeport completion bash > /etc/bash_completion.d/stakeport
  # macOS:
  $ stakeport completion bash > $(brew --prefix)/etc/bash_completion.d/stakeport

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  # To load completions for each session, execute once:
  $ stakeport completion zsh > "${fpath[1]}/_stakeport"
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ stakeport completion fish | source
  # To load completions for each session, execute once:
  $ stakeport completion fish > ~/.config/fish/completions/stakeport.fish

PowerShell:
  PS> stakeport completion powershell | Out-String | Invoke-Expression
  # To load completions for every new session, add the output to your profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}

// completeNetworks offers the named chains accepted by "network switch".
func completeNetworks(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{
		"mainnet\tBNB Smart Chain (56)",
		"testnet\tBNB Smart Chain testnet (97)",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeUserStatus offers allow-list statuses as the second argument of
// "admin users status".
func completeUserStatus(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 1 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{
		string(types.UserStatusActive),
		string(types.UserStatusSuspended),
		string(types.UserStatusInactive),
	}, cobra.ShellCompDirectiveNoFileComp
}
