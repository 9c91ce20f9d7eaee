package testutil

import (
	"context"

	"github.com/miladnoo/Heray/v1/models"
	"github.com/stretchr/testify/mock"
)

// MockMemberRepository is a testify mock of the member storage contract
type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	args := m.Called(ctx, email)
	member, _ := args.Get(0).(*models.Member)
	return member, args.Error(1)
}

func (m *MockMemberRepository) CreateMember(ctx context.Context, insert *models.MemberInsert) error {
	return m.Called(ctx, insert).Error(0)
}

func (m *MockMemberRepository) ListMembers(ctx context.Context) ([]models.Member, error) {
	args := m.Called(ctx)
	members, _ := args.Get(0).([]models.Member)
	return members, args.Error(1)
}

func (m *MockMemberRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockMemberRepository) Close() error {
	return m.Called().Error(0)
}
