package authz

import (
	"context"

	"github.com/stakeport/stakeport/pkg/types"
)

// Store is the external allow-list. Addresses passed in are already
// normalized to lower case. Lookups of an absent address return
// types.ErrNotFound; transport failures wrap types.ErrStore.
type Store interface {
	FindByAddress(ctx context.Context, address string) (*types.AuthorizationRecord, error)
	Insert(ctx context.Context, rec types.AuthorizationRecord) (*types.AuthorizationRecord, error)
	UpdateStatus(ctx context.Context, address string, status types.UserStatus) (*types.AuthorizationRecord, error)
	UpdateUserType(ctx context.Context, address string, userTypeID int64) (*types.AuthorizationRecord, error)
	List(ctx context.Context) ([]types.AuthorizationRecord, error)
	UserTypes(ctx context.Context) ([]types.UserType, error)
}
