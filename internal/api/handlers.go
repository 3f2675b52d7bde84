package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stakeport/stakeport/internal/authz"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/notify"
	"github.com/stakeport/stakeport/internal/wallet"
	"github.com/stakeport/stakeport/pkg/types"
)

// WebSocket channels.
const (
	ChannelSession  = "session"
	ChannelBalances = "balances"
)

// SessionResponse is the JSON form of the wallet session.
type SessionResponse struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	ChainID   string `json:"chain_id,omitempty"`
}

func sessionResponse(sess types.Session) SessionResponse {
	resp := SessionResponse{Connected: sess.Connected, Address: sess.AddressHex()}
	if sess.ChainID != nil {
		resp.ChainID = sess.ChainID.String()
	}
	return resp
}

// BalanceEntry is one token in a BalancesResponse.
type BalanceEntry struct {
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
	Raw      string `json:"raw"`
	Decimals uint8  `json:"decimals"`
	Failed   bool   `json:"failed,omitempty"`
}

// BalancesResponse lists every configured token, sorted by symbol.
type BalancesResponse struct {
	Address  string         `json:"address"`
	TakenAt  time.Time      `json:"taken_at"`
	Balances []BalanceEntry `json:"balances"`
}

func balancesResponse(snap *types.BalanceSnapshot) BalancesResponse {
	resp := BalancesResponse{
		Address:  snap.Address.Hex(),
		TakenAt:  snap.TakenAt,
		Balances: make([]BalanceEntry, 0, len(snap.Balances)),
	}
	for _, sym := range snap.Symbols() {
		tb := snap.Balances[sym]
		raw := "0"
		if tb.Raw != nil {
			raw = tb.Raw.String()
		}
		resp.Balances = append(resp.Balances, BalanceEntry{
			Symbol:   sym,
			Amount:   tb.Amount,
			Raw:      raw,
			Decimals: tb.Decimals,
			Failed:   tb.Failed,
		})
	}
	return resp
}

// AccessResponse is the public form of an access decision. It never says
// why access was denied.
type AccessResponse struct {
	Authorized bool             `json:"authorized"`
	Active     bool             `json:"active"`
	Admin      bool             `json:"admin"`
	Status     types.UserStatus `json:"status,omitempty"`
	UserType   string           `json:"user_type,omitempty"`
}

func accessResponse(acc authz.Access) AccessResponse {
	resp := AccessResponse{
		Authorized: acc.Authorized,
		Active:     acc.Active,
		Admin:      acc.Admin,
		Status:     acc.Status,
	}
	if acc.Record != nil && acc.Record.UserType != nil {
		resp.UserType = acc.Record.UserType.Name
	}
	return resp
}

// handleSession handles GET /v1/session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeError(w, http.StatusServiceUnavailable, "wallet session not available")
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse(s.sessions.Session()))
}

// handleBalances handles GET /v1/balances
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if s.balances == nil {
		s.writeError(w, http.StatusServiceUnavailable, "balance sync not available")
		return
	}
	snap := s.balances.Snapshot()
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no balance snapshot yet")
		return
	}
	s.writeJSON(w, http.StatusOK, balancesResponse(snap))
}

// handleAccess handles GET /v1/access/{address}
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	if s.access == nil {
		s.writeError(w, http.StatusServiceUnavailable, "authorization not available")
		return
	}
	acc := s.access.CheckAccess(r.Context(), r.PathValue("address"))
	s.writeJSON(w, http.StatusOK, accessResponse(acc))
}

// handleRegister handles POST /v1/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		s.writeError(w, http.StatusServiceUnavailable, "notifications not configured")
		return
	}

	var m notify.Member
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if m.IP == "" {
		m.IP = s.extractClientIP(r)
	}
	if m.RegisteredAt.IsZero() {
		m.RegisteredAt = time.Now()
	}

	err := s.notifier.NotifyRegistration(r.Context(), m)
	var derr *types.DeliveryError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, types.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &derr):
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":      "notification not delivered",
			"diagnostic": derr.Diagnostic,
		})
	default:
		s.writeError(w, http.StatusInternalServerError, "notification failed")
	}
}

// RelaySessions forwards session transitions to websocket clients until ctx
// is done or changes is closed.
func (s *Server) RelaySessions(ctx context.Context, changes <-chan wallet.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			s.BroadcastEvent(ChannelSession, string(ch.Kind), sessionResponse(ch.Session))
		}
	}
}

// PublishBalances forwards a new snapshot to websocket clients. It matches
// the balance synchronizer's update hook.
func (s *Server) PublishBalances(snap *types.BalanceSnapshot) {
	if snap == nil {
		s.BroadcastEvent(ChannelBalances, "cleared", nil)
		return
	}
	s.BroadcastEvent(ChannelBalances, "snapshot", balancesResponse(snap))
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("write response failed", logging.Component("api"), logging.Err(err))
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
