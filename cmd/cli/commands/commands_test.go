package commands

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/internal/app"
	"github.com/stakeport/stakeport/internal/chain"
	"github.com/stakeport/stakeport/internal/config"
	"github.com/stakeport/stakeport/internal/wallet"
	"github.com/stakeport/stakeport/pkg/types"
)

func subcommandNames(cmd *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	return names
}

func TestCommandUse(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		want string
	}{
		{NewInitCmd(), "init"},
		{NewWalletCmd(), "wallet"},
		{NewConnectCmd(), "connect"},
		{NewDisconnectCmd(), "disconnect"},
		{NewStatusCmd(), "status"},
		{NewNetworkCmd(), "network"},
		{NewBalanceCmd(), "balance"},
		{NewMonitorCmd(), "monitor"},
		{NewStakeCmd(), "stake"},
		{NewStrategyCmd(), "strategy"},
		{NewAdminCmd(), "admin"},
		{NewAccessCmd(), "access"},
		{NewNotifyCmd(), "notify"},
		{NewConfigCmd(), "config"},
		{NewDoctorCmd(), "doctor"},
		{NewVersionCmd(), "version"},
	}

	for _, tt := range tests {
		if tt.cmd == nil {
			t.Fatalf("%s: constructor returned nil", tt.want)
		}
		if tt.cmd.Use != tt.want {
			t.Errorf("Use mismatch: got %s, want %s", tt.cmd.Use, tt.want)
		}
	}
}

func TestStakeSubcommands(t *testing.T) {
	names := subcommandNames(NewStakeCmd())
	for _, want := range []string{"plans", "positions", "deposit", "withdraw", "open", "claim", "end", "emergency-withdraw"} {
		if !names[want] {
			t.Errorf("Missing stake subcommand: %s", want)
		}
	}
}

func TestAdminSubcommands(t *testing.T) {
	cmd := NewAdminCmd()
	names := subcommandNames(cmd)
	for _, want := range []string{"owner", "withdraw", "withdraw-all", "reserve", "users", "schema"} {
		if !names[want] {
			t.Errorf("Missing admin subcommand: %s", want)
		}
	}

	users, _, err := cmd.Find([]string{"users"})
	if err != nil {
		t.Fatalf("Find users: %v", err)
	}
	userNames := subcommandNames(users)
	for _, want := range []string{"list", "add", "status", "type", "types", "add-type"} {
		if !userNames[want] {
			t.Errorf("Missing users subcommand: %s", want)
		}
	}
}

func TestWalletSubcommands(t *testing.T) {
	names := subcommandNames(NewWalletCmd())
	for _, want := range []string{"create", "import", "show", "export", "forget-password"} {
		if !names[want] {
			t.Errorf("Missing wallet subcommand: %s", want)
		}
	}
}

func TestNotifyRegistrationFlags(t *testing.T) {
	cmd, _, err := NewNotifyCmd().Find([]string{"registration"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	for _, name := range []string{"username", "email", "first-name", "last-name", "referrer", "phone", "ip", "wallet", "preview"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag should exist", name)
		}
	}
}

func TestStakeArgs(t *testing.T) {
	open, _, err := NewStakeCmd().Find([]string{"open"})
	if err != nil {
		t.Fatal(err)
	}
	if err := open.Args(open, []string{"1"}); err == nil {
		t.Error("open should require plan id and amount")
	}
	if err := open.Args(open, []string{"1", "10"}); err != nil {
		t.Errorf("open args: %v", err)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		raw      *big.Int
		decimals uint8
		want     string
	}{
		{nil, 18, "0 USDT"},
		{big.NewInt(0), 18, "0 USDT"},
		{new(big.Int).Mul(big.NewInt(1234567), big.NewInt(1e18)), 18, "1,234,567 USDT"},
		{big.NewInt(1_500_000), 6, "1.5 USDT"},
		{big.NewInt(123_456_789_000), 6, "123,456.789 USDT"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.raw, tt.decimals, "USDT"); got != tt.want {
			t.Errorf("FormatAmount(%v, %d) = %q, want %q", tt.raw, tt.decimals, got, tt.want)
		}
	}
}

func TestAddThousandsSep(t *testing.T) {
	tests := map[string]string{
		"1":        "1",
		"999":      "999",
		"1000":     "1,000",
		"1234567":  "1,234,567",
		"-1234567": "-1,234,567",
	}
	for in, want := range tests {
		if got := addThousandsSep(in); got != want {
			t.Errorf("addThousandsSep(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestFormatAddress(t *testing.T) {
	got := FormatAddress("0x1234567890abcdef1234567890abcdef12345678")
	if got != "0x1234...5678" {
		t.Errorf("FormatAddress = %s", got)
	}
	if got := FormatAddress("0x12"); got != "0x12" {
		t.Errorf("short address changed: %s", got)
	}
}

func TestParseChainArg(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"mainnet", 56, true},
		{"TESTNET", 97, true},
		{"56", 56, true},
		{"0x61", 97, true},
		{"0", 0, false},
		{"ropsten", 0, false},
	}
	for _, tt := range tests {
		got, err := parseChainArg(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseChainArg(%s) err = %v", tt.in, err)
			continue
		}
		if tt.ok && got.Int64() != tt.want {
			t.Errorf("parseChainArg(%s) = %s, want %d", tt.in, got, tt.want)
		}
	}
}

func TestChainLabel(t *testing.T) {
	if got := chainLabel(nil); got != "unknown" {
		t.Errorf("chainLabel(nil) = %s", got)
	}
	if got := chainLabel(big.NewInt(97)); !strings.Contains(got, "testnet") {
		t.Errorf("chainLabel(97) = %s", got)
	}
	if got := chainLabel(big.NewInt(1)); got != "1" {
		t.Errorf("chainLabel(1) = %s", got)
	}
}

func TestParseAmount(t *testing.T) {
	v, err := parseAmount("1.25", 18)
	if err != nil {
		t.Fatalf("parseAmount: %v", err)
	}
	want, _ := new(big.Int).SetString("1250000000000000000", 10)
	if v.Cmp(want) != 0 {
		t.Errorf("parseAmount = %s, want %s", v, want)
	}
	if _, err := parseAmount("0", 18); err == nil {
		t.Error("zero amount should be rejected")
	}
	if _, err := parseAmount("abc", 18); err == nil {
		t.Error("non-numeric amount should be rejected")
	}
	for _, in := range []string{"--5", "-5"} {
		if _, err := parseAmount(in, 18); err == nil {
			t.Errorf("parseAmount(%q) should be rejected", in)
		}
	}
}

func TestParseIndex(t *testing.T) {
	if v, err := parseIndex("stake index", "3"); err != nil || v.Int64() != 3 {
		t.Errorf("parseIndex(3) = %v, %v", v, err)
	}
	if _, err := parseIndex("stake index", "-1"); err == nil {
		t.Error("negative index should be rejected")
	}
}

func TestOptionalAddress(t *testing.T) {
	if err := optionalAddress(""); err != nil {
		t.Errorf("empty: %v", err)
	}
	if err := optionalAddress("0x1234567890abcdef1234567890abcdef12345678"); err != nil {
		t.Errorf("valid: %v", err)
	}
	if err := optionalAddress("1234"); err == nil {
		t.Error("invalid address accepted")
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(30 * 24 * time.Hour); got != "30d" {
		t.Errorf("formatDuration(30d) = %s", got)
	}
	if got := formatDuration(90 * time.Minute); got != "1h30m0s" {
		t.Errorf("formatDuration(90m) = %s", got)
	}
}

func TestDescribeApproval(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{To: &to, Gas: 21000, Value: big.NewInt(1e18)})

	title, desc := describeApproval(wallet.ApprovalRequest{Kind: wallet.ApproveSign, Tx: tx})
	if title != "Sign transaction?" {
		t.Errorf("title = %s", title)
	}
	if !strings.Contains(desc, "Gas:  21000") || !strings.Contains(desc, "Value: 1") {
		t.Errorf("description = %q", desc)
	}

	_, desc = describeApproval(wallet.ApprovalRequest{Kind: wallet.ApproveAddChain, Network: &wallet.NetworkParams{
		ChainID:   big.NewInt(97),
		ChainName: "BNB Smart Chain Testnet",
		RPCURLs:   []string{"https://rpc.example"},
	}})
	if !strings.Contains(desc, "chain 97") || !strings.Contains(desc, "https://rpc.example") {
		t.Errorf("add-chain description = %q", desc)
	}
}

func TestConfirmApproval(t *testing.T) {
	defer func() { AssumeYes = false }()

	AssumeYes = true
	ok, err := confirmApproval(context.Background(), wallet.ApprovalRequest{Kind: wallet.ApproveConnect})
	if err != nil || !ok {
		t.Errorf("with --yes: ok=%v err=%v", ok, err)
	}

	// go test output is not a terminal, so prompts are declined
	AssumeYes = false
	ok, err = confirmApproval(context.Background(), wallet.ApprovalRequest{Kind: wallet.ApproveConnect})
	if err != nil || ok {
		t.Errorf("without terminal: ok=%v err=%v", ok, err)
	}
}

func TestRenderTablePlain(t *testing.T) {
	out := renderTablePlain([]string{"TOKEN", "BALANCE"}, [][]string{{"USDT", "10"}, {"BUSD", "2,000"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "TOKEN") || !strings.HasPrefix(lines[1], "-----") {
		t.Errorf("unexpected header:\n%s", out)
	}
}

func TestStatusBoxPlain(t *testing.T) {
	out := statusBoxPlain("Session", [][2]string{{"Address", "0xabc"}})
	if !strings.Contains(out, "Session\n=======") || !strings.Contains(out, "Address:") {
		t.Errorf("statusBoxPlain = %q", out)
	}
}

type countingRefresher struct {
	calls []common.Address
}

func (r *countingRefresher) Refresh(_ context.Context, address common.Address) *types.BalanceSnapshot {
	r.calls = append(r.calls, address)
	return &types.BalanceSnapshot{
		Address: address,
		Balances: map[string]types.TokenBalance{
			"USDT": {Symbol: "USDT", Raw: big.NewInt(2500000), Decimals: 6, Amount: "2.5"},
		},
	}
}

func TestRefreshAfterTx(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	connected := types.Session{Address: &addr, ChainID: big.NewInt(56), Connected: true}

	r := &countingRefresher{}
	open := func() (balanceRefresher, error) { return r, nil }

	snap := refreshAfterTx(context.Background(), connected, open)
	if snap == nil || len(r.calls) != 1 || r.calls[0] != addr {
		t.Fatalf("refresh calls = %v, snapshot = %v", r.calls, snap)
	}
	if !strings.Contains(renderBalances(snap), "2.5") {
		t.Errorf("balance table missing amount:\n%s", renderBalances(snap))
	}

	if snap := refreshAfterTx(context.Background(), types.Session{}, open); snap != nil || len(r.calls) != 1 {
		t.Error("disconnected session must not refresh")
	}

	notConfigured := func() (balanceRefresher, error) {
		return nil, fmt.Errorf("contracts.tokens: %w", app.ErrNotConfigured)
	}
	if snap := refreshAfterTx(context.Background(), connected, notConfigured); snap != nil {
		t.Error("no configured tokens should yield no snapshot")
	}

	broken := func() (balanceRefresher, error) { return nil, errors.New("dial failed") }
	if snap := refreshAfterTx(context.Background(), connected, broken); snap != nil {
		t.Error("failed synchronizer should yield no snapshot")
	}
}

func testApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	cfg.Wallet.KeystoreDir = filepath.Join(dir, "keystore")
	cfg.Wallet.StateFile = filepath.Join(dir, "session.yaml")
	a := app.New(cfg, app.Options{
		SilentPassword: func(common.Address) (string, error) { return "", errors.New("none") },
	})
	t.Cleanup(a.Close)
	return a
}

func TestReportTx(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	confirmed := &chain.TxResult{Method: "stake", State: types.TxConfirmed}

	if err := reportTx(ctx, a, confirmed, nil); err != nil {
		t.Errorf("confirmed: %v", err)
	}

	reverted := &chain.TxResult{Method: "stake", State: types.TxReverted}
	if err := reportTx(ctx, a, reverted, fmt.Errorf("stake: %w", types.ErrOnChainRevert)); !errors.Is(err, types.ErrOnChainRevert) {
		t.Errorf("reverted err = %v", err)
	}

	rejected := &types.ProviderError{Code: types.ProviderCodeUserRejected, Message: "user denied transaction signature"}
	err := reportTx(ctx, a, nil, rejected)
	if err == nil || !wallet.IsUserRejection(err) {
		t.Errorf("rejection err = %v, want a user rejection error", err)
	}
}

func TestStatusBadge(t *testing.T) {
	for _, status := range []string{"confirmed", "reverted", "dropped", "submitted", "matured", "locked", "ended"} {
		if got := StatusBadge(status); !strings.Contains(got, status) {
			t.Errorf("StatusBadge(%q) = %q", status, got)
		}
	}
	if statusTones[string(types.TxConfirmed)] == statusTones[string(types.TxReverted)] {
		t.Error("confirmed and reverted must render differently")
	}
	if _, ok := statusTones["ended"]; ok {
		t.Error("ended positions use the muted default")
	}
}

func TestCompletions(t *testing.T) {
	nets, dir := completeNetworks(nil, nil, "")
	if len(nets) != 2 || !strings.HasPrefix(nets[0], "mainnet") || dir != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("completeNetworks = %v, %v", nets, dir)
	}
	if nets, _ := completeNetworks(nil, []string{"mainnet"}, ""); len(nets) != 0 {
		t.Errorf("completeNetworks after first arg = %v", nets)
	}

	if got, _ := completeUserStatus(nil, nil, ""); len(got) != 0 {
		t.Errorf("first argument is an address, got %v", got)
	}
	got, _ := completeUserStatus(nil, []string{"0xabc"}, "")
	for _, s := range got {
		if !types.UserStatus(s).IsValid() {
			t.Errorf("completion %q is not a valid status", s)
		}
	}
}

func TestVersionInfo(t *testing.T) {
	info := versionInfo()
	if info.Version == "" || info.GethVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Errorf("versionInfo = %+v", info)
	}
}
