package commands

import (
	"fmt"
	"math/big"
	"runtime"

	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/cobra"
)

// VersionInfo is the JSON form of the version command.
type VersionInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildDate   string `json:"build_date"`
	GoVersion   string `json:"go_version"`
	GethVersion string `json:"geth_version"`
	Platform    string `json:"platform"`
	Network     string `json:"network,omitempty"`
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the stakeport build, the go-ethereum release it signs and reads
with, and the chain the current configuration targets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo()
			if jsonOutput() {
				return printJSON(info)
			}
			rows := [][2]string{
				{"Version", info.Version},
				{"Commit", info.Commit},
				{"Build Date", info.BuildDate},
				{"Go", info.GoVersion},
				{"go-ethereum", info.GethVersion},
				{"OS/Arch", info.Platform},
			}
			if info.Network != "" {
				rows = append(rows, [2]string{"Network", info.Network})
			}
			fmt.Println(StatusBox(Logo()+" version", rows))
			return nil
		},
	}
}

func versionInfo() VersionInfo {
	info := VersionInfo{
		Version:     GetVersion(),
		Commit:      GetCommit(),
		BuildDate:   BuildDate,
		GoVersion:   GetGoVersion(),
		GethVersion: params.Version,
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}
	if cfg := loadConfigQuiet(); cfg != nil {
		info.Network = chainLabel(big.NewInt(cfg.Network.ChainID))
	}
	return info
}
