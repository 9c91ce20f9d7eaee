package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/miladnoo/Heray/v1/database"
	"github.com/miladnoo/Heray/v1/models"
	"github.com/miladnoo/Heray/v1/testutil"
	"github.com/miladnoo/Heray/v1/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSQLiteService(t *testing.T) (*RegistrationService, *gorm.DB) {
	db := testutil.SetupSQLiteTestDB(t)
	return NewRegistrationService(database.NewGormRepository(db)), db
}

func countMembers(t *testing.T, db *gorm.DB) int64 {
	var count int64
	require.NoError(t, db.Model(&models.Member{}).Count(&count).Error)
	return count
}

func TestRegister_ConcreteScenario(t *testing.T) {
	service, db := newSQLiteService(t)
	ctx := context.Background()

	first := service.Register(ctx, []byte(`{"full_name":"Ana Li","email":"ana@example.com"}`))
	assert.Equal(t, http.StatusCreated, first.Status)
	assert.Equal(t, models.MessageResponse{Message: "Successfully registered!"}, first.Body)
	assert.Equal(t, KindNone, first.Kind)

	second := service.Register(ctx, []byte(`{"full_name":"Ana Li","email":"ana@example.com"}`))
	assert.Equal(t, http.StatusConflict, second.Status)
	assert.Equal(t, models.ErrorResponse{Error: "Email already registered"}, second.Body)
	assert.Equal(t, KindConflict, second.Kind)

	invalid := service.Register(ctx, []byte(`{"full_name":"A","email":"bad"}`))
	assert.Equal(t, http.StatusBadRequest, invalid.Status)
	assert.Equal(t, KindValidation, invalid.Kind)
	body, ok := invalid.Body.(models.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, "Invalid input data", body.Error)
	assert.Equal(t, []string{validation.ErrMsgFullName, validation.ErrMsgEmail}, body.Details)

	assert.Equal(t, int64(1), countMembers(t, db))
}

func TestRegister_DuplicateIsCaseInsensitive(t *testing.T) {
	service, db := newSQLiteService(t)
	ctx := context.Background()

	require.Equal(t, http.StatusCreated, service.Register(ctx, []byte(`{"full_name":"Ana Li","email":"ana@example.com"}`)).Status)
	result := service.Register(ctx, []byte(`{"full_name":"Ana Li","email":"ANA@Example.com"}`))
	assert.Equal(t, http.StatusConflict, result.Status)
	assert.Equal(t, int64(1), countMembers(t, db))
}

func TestRegister_PhoneNormalization(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		email   string
		want    *string
	}{
		{"omitted", `{"full_name":"Ana Li","email":"a1@x.org"}`, "a1@x.org", nil},
		{"empty string", `{"full_name":"Ana Li","email":"a2@x.org","phone":""}`, "a2@x.org", nil},
		{"null", `{"full_name":"Ana Li","email":"a3@x.org","phone":null}`, "a3@x.org", nil},
		{"non-string", `{"full_name":"Ana Li","email":"a4@x.org","phone":5550100}`, "a4@x.org", nil},
		{"free text", `{"full_name":"Ana Li","email":"a5@x.org","phone":"call after 5pm"}`, "a5@x.org", strPtr("call after 5pm")},
	}

	service, db := newSQLiteService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := service.Register(context.Background(), []byte(tt.payload))
			require.Equal(t, http.StatusCreated, result.Status)

			var stored models.Member
			require.NoError(t, db.Where("email = ?", tt.email).First(&stored).Error)
			assert.Equal(t, tt.want, stored.Phone)
		})
	}
}

func TestRegister_MalformedPayload(t *testing.T) {
	repo := new(testutil.MockMemberRepository)
	service := NewRegistrationService(repo)

	bothMissing := models.ErrorResponse{
		Error:   "Invalid input data",
		Details: []string{validation.ErrMsgFullName, validation.ErrMsgEmail},
	}

	tests := []struct {
		name       string
		raw        string
		wantStatus int
		wantKind   ErrorKind
		wantBody   models.ErrorResponse
	}{
		{"unparseable", `{not json`, http.StatusInternalServerError, KindInternal, models.ErrorResponse{Error: "Internal server error"}},
		{"empty body", ``, http.StatusInternalServerError, KindInternal, models.ErrorResponse{Error: "Internal server error"}},
		{"null", `null`, http.StatusInternalServerError, KindInternal, models.ErrorResponse{Error: "Internal server error"}},
		{"empty array", `[]`, http.StatusBadRequest, KindValidation, bothMissing},
		{"array", `[1,2]`, http.StatusBadRequest, KindValidation, bothMissing},
		{"string", `"ana"`, http.StatusBadRequest, KindValidation, bothMissing},
		{"number", `42`, http.StatusBadRequest, KindValidation, bothMissing},
		{"boolean", `true`, http.StatusBadRequest, KindValidation, bothMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := service.Register(context.Background(), []byte(tt.raw))
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantKind, result.Kind)
			assert.Equal(t, tt.wantBody, result.Body)
		})
	}
	repo.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "CreateMember", mock.Anything, mock.Anything)
}

func TestRegister_ValidationSkipsStorage(t *testing.T) {
	repo := new(testutil.MockMemberRepository)
	service := NewRegistrationService(repo)

	result := service.Register(context.Background(), []byte(`{"full_name":"Ana Li","email":42}`))
	assert.Equal(t, http.StatusBadRequest, result.Status)
	body := result.Body.(models.ErrorResponse)
	assert.Equal(t, []string{validation.ErrMsgEmail}, body.Details)
	repo.AssertExpectations(t)
}

func TestRegister_StorageFailure(t *testing.T) {
	repo := new(testutil.MockMemberRepository)
	repo.On("FindByEmail", mock.Anything, "ana@example.com").Return(nil, nil)
	repo.On("CreateMember", mock.Anything, mock.AnythingOfType("*models.MemberInsert")).
		Return(&database.StorageError{Operation: "insert", Message: "new row violates row-level security policy"})
	service := NewRegistrationService(repo)

	result := service.Register(context.Background(), []byte(`{"full_name":"Ana Li","email":"ana@example.com"}`))
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.Equal(t, KindStorage, result.Kind)
	assert.Equal(t, models.ErrorResponse{Error: "Failed to register member: new row violates row-level security policy"}, result.Body)
	repo.AssertExpectations(t)
}

func TestRegister_LookupFailureFallsBackToUniqueIndex(t *testing.T) {
	t.Run("insert succeeds", func(t *testing.T) {
		repo := new(testutil.MockMemberRepository)
		repo.On("FindByEmail", mock.Anything, "ana@example.com").Return(nil, errors.New("permission denied"))
		repo.On("CreateMember", mock.Anything, mock.Anything).Return(nil)
		service := NewRegistrationService(repo)

		result := service.Register(context.Background(), []byte(`{"full_name":"Ana Li","email":"ana@example.com"}`))
		assert.Equal(t, http.StatusCreated, result.Status)
		repo.AssertExpectations(t)
	})

	t.Run("unique index rejects", func(t *testing.T) {
		repo := new(testutil.MockMemberRepository)
		repo.On("FindByEmail", mock.Anything, "ana@example.com").Return(nil, errors.New("permission denied"))
		repo.On("CreateMember", mock.Anything, mock.Anything).Return(database.ErrDuplicateEmail)
		service := NewRegistrationService(repo)

		result := service.Register(context.Background(), []byte(`{"full_name":"Ana Li","email":"ana@example.com"}`))
		assert.Equal(t, http.StatusConflict, result.Status)
		assert.Equal(t, models.ErrorResponse{Error: "Email already registered"}, result.Body)
	})
}

func TestRegister_InsertPayload(t *testing.T) {
	repo := new(testutil.MockMemberRepository)
	repo.On("FindByEmail", mock.Anything, "ana@example.com").Return(nil, nil)
	repo.On("CreateMember", mock.Anything, mock.MatchedBy(func(insert *models.MemberInsert) bool {
		return insert.FullName == "Ana Li" && insert.Email == "ana@example.com" &&
			insert.Phone != nil && *insert.Phone == "+1 555 0100"
	})).Return(nil)
	service := NewRegistrationService(repo)

	result := service.Register(context.Background(),
		[]byte(`{"full_name":"Ana Li","email":"ana@example.com","phone":"+1 555 0100","extra":"ignored"}`))
	assert.Equal(t, http.StatusCreated, result.Status)
	repo.AssertExpectations(t)
}

func strPtr(s string) *string { return &s }
