package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// MockUserRepository is a mock of ports.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// ListUsers implements ports.UserRepository.
func (m *MockUserRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)

	var users []domain.User
	if v := args.Get(0); v != nil {
		users = v.([]domain.User)
	}

	return users, args.Error(1)
}

// GetUser implements ports.UserRepository.
func (m *MockUserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return userResult(m.Called(ctx, id))
}

// GetUserByEmail implements ports.UserRepository.
func (m *MockUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return userResult(m.Called(ctx, email))
}

// GetUserByUsername implements ports.UserRepository.
func (m *MockUserRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return userResult(m.Called(ctx, username))
}

// InsertUser implements ports.UserRepository.
func (m *MockUserRepository) InsertUser(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

// MockUserRepositoryExpecter builds expectations for MockUserRepository.
type MockUserRepositoryExpecter struct {
	mock *mock.Mock
}

// EXPECT returns the expectation builder.
func (m *MockUserRepository) EXPECT() *MockUserRepositoryExpecter {
	return &MockUserRepositoryExpecter{mock: &m.Mock}
}

// ListUsers expects a ListUsers call.
func (e *MockUserRepositoryExpecter) ListUsers(ctx any) *mock.Call {
	return e.mock.On("ListUsers", ctx)
}

// GetUser expects a GetUser call.
func (e *MockUserRepositoryExpecter) GetUser(ctx, id any) *mock.Call {
	return e.mock.On("GetUser", ctx, id)
}

// GetUserByEmail expects a GetUserByEmail call.
func (e *MockUserRepositoryExpecter) GetUserByEmail(ctx, email any) *mock.Call {
	return e.mock.On("GetUserByEmail", ctx, email)
}

// GetUserByUsername expects a GetUserByUsername call.
func (e *MockUserRepositoryExpecter) GetUserByUsername(ctx, username any) *mock.Call {
	return e.mock.On("GetUserByUsername", ctx, username)
}

// InsertUser expects an InsertUser call.
func (e *MockUserRepositoryExpecter) InsertUser(ctx, user any) *mock.Call {
	return e.mock.On("InsertUser", ctx, user)
}

// MockAccountRepository is a mock of ports.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a mock that asserts its expectations on cleanup.
func NewMockAccountRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// ListAccounts implements ports.AccountRepository.
func (m *MockAccountRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)

	var accounts []domain.Account
	if v := args.Get(0); v != nil {
		accounts = v.([]domain.Account)
	}

	return accounts, args.Error(1)
}

// GetAccount implements ports.AccountRepository.
func (m *MockAccountRepository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return accountResult(m.Called(ctx, id))
}

// GetAccountByProviderAccountID implements ports.AccountRepository.
func (m *MockAccountRepository) GetAccountByProviderAccountID(
	ctx context.Context,
	providerAccountID string,
) (*domain.Account, error) {
	return accountResult(m.Called(ctx, providerAccountID))
}

// MockAccountRepositoryExpecter builds expectations for MockAccountRepository.
type MockAccountRepositoryExpecter struct {
	mock *mock.Mock
}

// EXPECT returns the expectation builder.
func (m *MockAccountRepository) EXPECT() *MockAccountRepositoryExpecter {
	return &MockAccountRepositoryExpecter{mock: &m.Mock}
}

// ListAccounts expects a ListAccounts call.
func (e *MockAccountRepositoryExpecter) ListAccounts(ctx any) *mock.Call {
	return e.mock.On("ListAccounts", ctx)
}

// GetAccount expects a GetAccount call.
func (e *MockAccountRepositoryExpecter) GetAccount(ctx, id any) *mock.Call {
	return e.mock.On("GetAccount", ctx, id)
}

// GetAccountByProviderAccountID expects a GetAccountByProviderAccountID call.
func (e *MockAccountRepositoryExpecter) GetAccountByProviderAccountID(ctx, providerAccountID any) *mock.Call {
	return e.mock.On("GetAccountByProviderAccountID", ctx, providerAccountID)
}

// MockEventPublisher is a mock of ports.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

// NewMockEventPublisher creates a mock that asserts its expectations on cleanup.
func NewMockEventPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockEventPublisher {
	m := &MockEventPublisher{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// Publish implements ports.EventPublisher.
func (m *MockEventPublisher) Publish(ctx context.Context, event ports.Event) error {
	return m.Called(ctx, event).Error(0)
}

// MockEventPublisherExpecter builds expectations for MockEventPublisher.
type MockEventPublisherExpecter struct {
	mock *mock.Mock
}

// EXPECT returns the expectation builder.
func (m *MockEventPublisher) EXPECT() *MockEventPublisherExpecter {
	return &MockEventPublisherExpecter{mock: &m.Mock}
}

// Publish expects a Publish call.
func (e *MockEventPublisherExpecter) Publish(ctx, event any) *mock.Call {
	return e.mock.On("Publish", ctx, event)
}

var (
	_ ports.IdentityStore     = (*MockIdentityStore)(nil)
	_ ports.IdentityTx        = (*MockIdentityTx)(nil)
	_ ports.UserRepository    = (*MockUserRepository)(nil)
	_ ports.AccountRepository = (*MockAccountRepository)(nil)
	_ ports.EventPublisher    = (*MockEventPublisher)(nil)
)
