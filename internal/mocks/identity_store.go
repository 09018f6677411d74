// Package mocks provides testify mocks for the ports interfaces.
// Each mock exposes an EXPECT() helper returning typed call builders.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// TxFunc is the callback passed to IdentityStore.WithinTransaction.
type TxFunc = func(ctx context.Context, tx ports.IdentityTx) error

// MockIdentityStore is a mock of ports.IdentityStore.
type MockIdentityStore struct {
	mock.Mock
}

// NewMockIdentityStore creates a mock that asserts its expectations on cleanup.
func NewMockIdentityStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockIdentityStore {
	m := &MockIdentityStore{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// WithinTransaction implements ports.IdentityStore.
func (m *MockIdentityStore) WithinTransaction(ctx context.Context, fn TxFunc) error {
	args := m.Called(ctx, fn)

	if rf, ok := args.Get(0).(func(context.Context, TxFunc) error); ok {
		return rf(ctx, fn)
	}

	return args.Error(0)
}

// MockIdentityStoreExpecter builds expectations for MockIdentityStore.
type MockIdentityStoreExpecter struct {
	mock *mock.Mock
}

// EXPECT returns the expectation builder.
func (m *MockIdentityStore) EXPECT() *MockIdentityStoreExpecter {
	return &MockIdentityStoreExpecter{mock: &m.Mock}
}

// MockIdentityStoreWithinTransactionCall is a typed WithinTransaction expectation.
type MockIdentityStoreWithinTransactionCall struct {
	*mock.Call
}

// WithinTransaction expects a WithinTransaction call.
func (e *MockIdentityStoreExpecter) WithinTransaction(ctx, fn any) *MockIdentityStoreWithinTransactionCall {
	return &MockIdentityStoreWithinTransactionCall{Call: e.mock.On("WithinTransaction", ctx, fn)}
}

// Return sets a fixed result without running the callback.
func (c *MockIdentityStoreWithinTransactionCall) Return(err error) *MockIdentityStoreWithinTransactionCall {
	c.Call.Return(err)
	return c
}

// RunWith runs the callback against tx and returns its result.
func (c *MockIdentityStoreWithinTransactionCall) RunWith(tx ports.IdentityTx) *MockIdentityStoreWithinTransactionCall {
	c.Call.Return(func(ctx context.Context, fn TxFunc) error {
		return fn(ctx, tx)
	})

	return c
}

// MockIdentityTx is a mock of ports.IdentityTx.
type MockIdentityTx struct {
	mock.Mock
}

// NewMockIdentityTx creates a mock that asserts its expectations on cleanup.
func NewMockIdentityTx(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockIdentityTx {
	m := &MockIdentityTx{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// FindUserByEmail implements ports.IdentityTx.
func (m *MockIdentityTx) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	return userResult(args)
}

// FindUserByUsername implements ports.IdentityTx.
func (m *MockIdentityTx) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	return userResult(args)
}

// CreateUser implements ports.IdentityTx.
func (m *MockIdentityTx) CreateUser(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

// UpdateUserProfile implements ports.IdentityTx.
func (m *MockIdentityTx) UpdateUserProfile(ctx context.Context, userID string, changes domain.ProfileChanges) error {
	return m.Called(ctx, userID, changes).Error(0)
}

// FindAccount implements ports.IdentityTx.
func (m *MockIdentityTx) FindAccount(
	ctx context.Context,
	userID string,
	identity domain.ProviderIdentity,
) (*domain.Account, error) {
	args := m.Called(ctx, userID, identity)
	return accountResult(args)
}

// CreateAccount implements ports.IdentityTx.
func (m *MockIdentityTx) CreateAccount(ctx context.Context, account *domain.Account) error {
	return m.Called(ctx, account).Error(0)
}

// MockIdentityTxExpecter builds expectations for MockIdentityTx.
type MockIdentityTxExpecter struct {
	mock *mock.Mock
}

// EXPECT returns the expectation builder.
func (m *MockIdentityTx) EXPECT() *MockIdentityTxExpecter {
	return &MockIdentityTxExpecter{mock: &m.Mock}
}

// FindUserByEmail expects a FindUserByEmail call.
func (e *MockIdentityTxExpecter) FindUserByEmail(ctx, email any) *mock.Call {
	return e.mock.On("FindUserByEmail", ctx, email)
}

// FindUserByUsername expects a FindUserByUsername call.
func (e *MockIdentityTxExpecter) FindUserByUsername(ctx, username any) *mock.Call {
	return e.mock.On("FindUserByUsername", ctx, username)
}

// CreateUser expects a CreateUser call.
func (e *MockIdentityTxExpecter) CreateUser(ctx, user any) *mock.Call {
	return e.mock.On("CreateUser", ctx, user)
}

// UpdateUserProfile expects an UpdateUserProfile call.
func (e *MockIdentityTxExpecter) UpdateUserProfile(ctx, userID, changes any) *mock.Call {
	return e.mock.On("UpdateUserProfile", ctx, userID, changes)
}

// FindAccount expects a FindAccount call.
func (e *MockIdentityTxExpecter) FindAccount(ctx, userID, identity any) *mock.Call {
	return e.mock.On("FindAccount", ctx, userID, identity)
}

// CreateAccount expects a CreateAccount call.
func (e *MockIdentityTxExpecter) CreateAccount(ctx, account any) *mock.Call {
	return e.mock.On("CreateAccount", ctx, account)
}

func userResult(args mock.Arguments) (*domain.User, error) {
	var user *domain.User
	if v := args.Get(0); v != nil {
		user = v.(*domain.User)
	}

	return user, args.Error(1)
}

func accountResult(args mock.Arguments) (*domain.Account, error) {
	var account *domain.Account
	if v := args.Get(0); v != nil {
		account = v.(*domain.Account)
	}

	return account, args.Error(1)
}
