package authz

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/pkg/types"
)

const (
	mixedCaseAddr = "0xAbC0000000000000000000000000000000000DeF"
	lowerAddr     = "0xabc0000000000000000000000000000000000def"
)

// memStore is an in-memory Store that counts calls.
type memStore struct {
	mu        sync.Mutex
	records   map[string]types.AuthorizationRecord
	userTypes []types.UserType
	err       error
	calls     int
	lookups   []string
}

func newMemStore(recs ...types.AuthorizationRecord) *memStore {
	s := &memStore{records: make(map[string]types.AuthorizationRecord)}
	for _, r := range recs {
		s.records[r.WalletAddress] = r
	}
	return s
}

func (s *memStore) FindByAddress(_ context.Context, address string) (*types.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lookups = append(s.lookups, address)
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[address]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &rec, nil
}

func (s *memStore) Insert(_ context.Context, rec types.AuthorizationRecord) (*types.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := s.records[rec.WalletAddress]; ok {
		return nil, &types.ValidationError{Field: "wallet_address", Reason: "already on the allow-list"}
	}
	rec.ID = int64(len(s.records) + 1)
	s.records[rec.WalletAddress] = rec
	return &rec, nil
}

func (s *memStore) UpdateStatus(_ context.Context, address string, status types.UserStatus) (*types.AuthorizationRecord, error) {
	return s.mutate(address, func(r *types.AuthorizationRecord) { r.Status = status })
}

func (s *memStore) UpdateUserType(_ context.Context, address string, id int64) (*types.AuthorizationRecord, error) {
	return s.mutate(address, func(r *types.AuthorizationRecord) { r.UserTypeID = id })
}

func (s *memStore) mutate(address string, fn func(*types.AuthorizationRecord)) (*types.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[address]
	if !ok {
		return nil, types.ErrNotFound
	}
	fn(&rec)
	s.records[address] = rec
	return &rec, nil
}

func (s *memStore) List(context.Context) ([]types.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]types.AuthorizationRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, s.err
}

func (s *memStore) UserTypes(context.Context) ([]types.UserType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.userTypes, s.err
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func adminType() *types.UserType {
	return &types.UserType{ID: 1, Name: "admin", IsAdmin: true}
}

func TestCheckAccess_MalformedAddressDoesNoIO(t *testing.T) {
	store := newMemStore()
	gate := NewGate(store, nil)

	inputs := []string{
		"",
		"0x123",
		"abc0000000000000000000000000000000000def00",
		"0xZZZ0000000000000000000000000000000000def",
		"0xabc0000000000000000000000000000000000def0",
		" 0xabc0000000000000000000000000000000000def",
	}
	for _, in := range inputs {
		acc := gate.CheckAccess(context.Background(), in)
		assert.Equal(t, Access{}, acc, "input %q", in)
	}
	assert.Zero(t, store.callCount(), "malformed input must not reach the store")
}

func TestCheckAccess_CaseInsensitive(t *testing.T) {
	store := newMemStore(types.AuthorizationRecord{
		WalletAddress: lowerAddr,
		Status:        types.UserStatusActive,
		UserTypeID:    2,
		UserType:      &types.UserType{ID: 2, Name: "investor"},
	})
	gate := NewGate(store, nil)

	upper := gate.CheckAccess(context.Background(), mixedCaseAddr)
	lower := gate.CheckAccess(context.Background(), lowerAddr)

	assert.True(t, upper.Authorized)
	assert.True(t, upper.Active)
	assert.False(t, upper.Admin)
	assert.Equal(t, upper, lower)
	assert.Equal(t, []string{lowerAddr, lowerAddr}, store.lookups)
}

func TestCheckAccess_Absent(t *testing.T) {
	gate := NewGate(newMemStore(), nil)

	acc := gate.CheckAccess(context.Background(), lowerAddr)
	assert.Equal(t, Access{}, acc)
}

func TestCheckAccess_StoreFailureFailsClosed(t *testing.T) {
	store := newMemStore(types.AuthorizationRecord{
		WalletAddress: lowerAddr,
		Status:        types.UserStatusActive,
		UserType:      adminType(),
	})
	store.err = errors.New("connection reset")
	gate := NewGate(store, metrics.NewCollector())

	acc := gate.CheckAccess(context.Background(), lowerAddr)
	assert.Equal(t, Access{}, acc)
	assert.False(t, gate.IsAdmin(context.Background(), lowerAddr))
}

func TestCheckAccess_Suspended(t *testing.T) {
	store := newMemStore(types.AuthorizationRecord{
		WalletAddress: lowerAddr,
		Status:        types.UserStatusSuspended,
		UserType:      adminType(),
	})
	gate := NewGate(store, nil)

	acc := gate.CheckAccess(context.Background(), mixedCaseAddr)
	assert.True(t, acc.Authorized)
	assert.False(t, acc.Active)
	assert.False(t, acc.Admin, "suspended admins lose admin rights")
	assert.Equal(t, types.UserStatusSuspended, acc.Status)
}

func TestIsAdmin(t *testing.T) {
	store := newMemStore(types.AuthorizationRecord{
		WalletAddress: lowerAddr,
		Status:        types.UserStatusActive,
		UserTypeID:    1,
		UserType:      adminType(),
	})
	gate := NewGate(store, nil)

	assert.True(t, gate.IsAdmin(context.Background(), mixedCaseAddr))
	assert.False(t, gate.IsAdmin(context.Background(), "0x0000000000000000000000000000000000000001"))
}

func TestAddUser(t *testing.T) {
	store := newMemStore()
	gate := NewGate(store, nil)

	rec, err := gate.AddUser(context.Background(), "0xadmin", NewUser{
		WalletAddress: mixedCaseAddr,
		FirstName:     "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, lowerAddr, rec.WalletAddress)
	assert.Equal(t, types.UserStatusActive, rec.Status)

	acc := gate.CheckAccess(context.Background(), mixedCaseAddr)
	assert.True(t, acc.Active)

	_, err = gate.AddUser(context.Background(), "0xadmin", NewUser{WalletAddress: lowerAddr})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestAddUser_Validation(t *testing.T) {
	store := newMemStore()
	gate := NewGate(store, nil)

	_, err := gate.AddUser(context.Background(), "0xadmin", NewUser{WalletAddress: "0x12"})
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "wallet_address", verr.Field)

	_, err = gate.AddUser(context.Background(), "0xadmin", NewUser{WalletAddress: lowerAddr, Status: "Banned"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)

	assert.Zero(t, store.callCount())
}

func TestUpdateStatus(t *testing.T) {
	store := newMemStore(types.AuthorizationRecord{WalletAddress: lowerAddr, Status: types.UserStatusActive})
	gate := NewGate(store, nil)

	rec, err := gate.UpdateStatus(context.Background(), "0xadmin", mixedCaseAddr, types.UserStatusInactive)
	require.NoError(t, err)
	assert.Equal(t, types.UserStatusInactive, rec.Status)
	assert.False(t, gate.CheckAccess(context.Background(), lowerAddr).Active)

	_, err = gate.UpdateStatus(context.Background(), "0xadmin", lowerAddr, "Paused")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = gate.UpdateStatus(context.Background(), "0xadmin", "0x0000000000000000000000000000000000000002", types.UserStatusActive)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpdateType(t *testing.T) {
	store := newMemStore(types.AuthorizationRecord{WalletAddress: lowerAddr, Status: types.UserStatusActive})
	gate := NewGate(store, nil)

	rec, err := gate.UpdateType(context.Background(), "0xadmin", lowerAddr, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.UserTypeID)

	_, err = gate.UpdateType(context.Background(), "0xadmin", "nope", 3)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestListUsersAndTypes(t *testing.T) {
	store := newMemStore(
		types.AuthorizationRecord{WalletAddress: lowerAddr},
		types.AuthorizationRecord{WalletAddress: "0x0000000000000000000000000000000000000001"},
	)
	store.userTypes = []types.UserType{*adminType(), {ID: 2, Name: "investor"}}
	gate := NewGate(store, nil)

	users, err := gate.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)

	uts, err := gate.UserTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", uts[0].Name)
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress(lowerAddr))
	assert.True(t, ValidAddress(mixedCaseAddr))
	assert.False(t, ValidAddress("0X"+lowerAddr[2:]))
	assert.False(t, ValidAddress(lowerAddr[2:]))
}
