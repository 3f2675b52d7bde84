package authz

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/pkg/types"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s is a 0x-prefixed 40 hex digit address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Access is the outcome of an allow-list check. A malformed address, an
// absent record and a failed lookup all produce the zero Access.
type Access struct {
	Authorized bool                       `json:"authorized"`
	Active     bool                       `json:"active"`
	Admin      bool                       `json:"admin"`
	Status     types.UserStatus           `json:"status,omitempty"`
	Record     *types.AuthorizationRecord `json:"record,omitempty"`
}

// Gate decides dashboard access from the allow-list store.
type Gate struct {
	store   Store
	metrics *metrics.Collector
}

// NewGate creates a Gate over store. m may be nil.
func NewGate(store Store, m *metrics.Collector) *Gate {
	return &Gate{store: store, metrics: m}
}

// CheckAccess looks up address in the allow-list. It fails closed: any
// problem yields Access{} and the caller cannot tell which one occurred.
func (g *Gate) CheckAccess(ctx context.Context, address string) Access {
	if !ValidAddress(address) {
		g.metrics.RecordAccess("malformed")
		return Access{}
	}
	normalized := types.NormalizeAddress(address)

	rec, err := g.store.FindByAddress(ctx, normalized)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			logging.Warn("allow-list lookup failed, denying",
				logging.Component("authz"),
				logging.Address(normalized),
				logging.Err(err))
			g.metrics.RecordAccess("error")
		} else {
			g.metrics.RecordAccess("absent")
		}
		return Access{}
	}

	acc := Access{
		Authorized: true,
		Active:     rec.Status == types.UserStatusActive,
		Status:     rec.Status,
		Record:     rec,
	}
	acc.Admin = acc.Active && rec.UserType != nil && rec.UserType.IsAdmin
	if acc.Active {
		g.metrics.RecordAccess("active")
	} else {
		g.metrics.RecordAccess("inactive")
	}
	return acc
}

// IsAdmin is a convenience over CheckAccess.
func (g *Gate) IsAdmin(ctx context.Context, address string) bool {
	return g.CheckAccess(ctx, address).Admin
}

// NewUser is the input for AddUser.
type NewUser struct {
	WalletAddress string
	FirstName     string
	LastName      string
	Status        types.UserStatus
	UserTypeID    int64
}

// AddUser writes a new allow-list entry. actor is recorded in the audit log.
func (g *Gate) AddUser(ctx context.Context, actor string, u NewUser) (*types.AuthorizationRecord, error) {
	if !ValidAddress(u.WalletAddress) {
		return nil, &types.ValidationError{Field: "wallet_address", Reason: "must be a 0x-prefixed 40 hex digit address"}
	}
	if u.Status == "" {
		u.Status = types.UserStatusActive
	}
	if !u.Status.IsValid() {
		return nil, &types.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", u.Status)}
	}

	rec, err := g.store.Insert(ctx, types.AuthorizationRecord{
		WalletAddress: types.NormalizeAddress(u.WalletAddress),
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Status:        u.Status,
		UserTypeID:    u.UserTypeID,
	})
	audit("user_added", actor, u.WalletAddress, err, "status="+string(u.Status))
	return rec, err
}

// UpdateStatus changes the status of an existing entry.
func (g *Gate) UpdateStatus(ctx context.Context, actor, address string, status types.UserStatus) (*types.AuthorizationRecord, error) {
	if !ValidAddress(address) {
		return nil, &types.ValidationError{Field: "wallet_address", Reason: "must be a 0x-prefixed 40 hex digit address"}
	}
	if !status.IsValid() {
		return nil, &types.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	rec, err := g.store.UpdateStatus(ctx, types.NormalizeAddress(address), status)
	audit("status_updated", actor, address, err, "status="+string(status))
	return rec, err
}

// UpdateType changes the user type of an existing entry.
func (g *Gate) UpdateType(ctx context.Context, actor, address string, userTypeID int64) (*types.AuthorizationRecord, error) {
	if !ValidAddress(address) {
		return nil, &types.ValidationError{Field: "wallet_address", Reason: "must be a 0x-prefixed 40 hex digit address"}
	}
	rec, err := g.store.UpdateUserType(ctx, types.NormalizeAddress(address), userTypeID)
	audit("type_updated", actor, address, err, fmt.Sprintf("user_type_id=%d", userTypeID))
	return rec, err
}

// ListUsers returns every allow-list entry, newest first.
func (g *Gate) ListUsers(ctx context.Context) ([]types.AuthorizationRecord, error) {
	return g.store.List(ctx)
}

// UserTypes returns the available user types.
func (g *Gate) UserTypes(ctx context.Context) ([]types.UserType, error) {
	return g.store.UserTypes(ctx)
}

func audit(op, actor, target string, err error, details string) {
	result := "success"
	if err != nil {
		result = "failure"
		details += " error=" + err.Error()
	}
	logging.Audit(logging.AuditEvent{
		Operation: op,
		Actor:     actor,
		Target:    types.NormalizeAddress(target),
		Result:    result,
		Details:   details,
	})
}
