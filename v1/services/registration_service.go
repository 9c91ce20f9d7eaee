package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/miladnoo/Heray/monitoring"
	"github.com/miladnoo/Heray/v1/database"
	"github.com/miladnoo/Heray/v1/models"
	"github.com/miladnoo/Heray/v1/validation"
)

// RegistrationResult is the outcome of one signup, ready to be written as an HTTP response
type RegistrationResult struct {
	Status int
	Body   interface{}
	Kind   ErrorKind
	Err    error
}

// RegistrationService runs the public intake pipeline: validate, deduplicate, persist
type RegistrationService struct {
	repo database.MemberRepository
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(repo database.MemberRepository) *RegistrationService {
	return &RegistrationService{repo: repo}
}

// Register processes a raw JSON signup payload. The created row is never echoed back.
func (s *RegistrationService) Register(ctx context.Context, raw []byte) *RegistrationResult {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed == nil {
		if err == nil {
			err = errors.New("payload is null")
		}
		slog.Error("Failed to parse registration payload", "error", err)
		monitoring.RecordBusinessEvent(ctx, "member_registration", false)
		return failure(http.StatusInternalServerError, KindInternal, err, models.ErrorResponse{Error: MsgInternalError})
	}

	// Arrays and scalars carry no fields, so validation reports both as missing
	payload, ok := parsed.(map[string]any)
	if !ok {
		payload = map[string]any{}
	}

	result := validation.ValidateMember(payload)
	if !result.IsValid {
		monitoring.RecordBusinessEvent(ctx, "member_registration_invalid", false)
		return failure(http.StatusBadRequest, KindValidation, nil, models.ErrorResponse{
			Error:   MsgInvalidInput,
			Details: result.Errors,
		})
	}

	insert := normalize(payload)

	// A failed lookup is not fatal: the storage unique index still rejects duplicates
	existing, err := s.repo.FindByEmail(ctx, insert.Email)
	if err != nil {
		slog.Warn("Failed to check for existing member, relying on unique index", "error", err, "email", insert.Email)
	}
	if existing != nil {
		monitoring.RecordBusinessEvent(ctx, "member_registration_duplicate", false)
		return duplicate()
	}

	if err := s.repo.CreateMember(ctx, insert); err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			// Lost the race to a concurrent signup with the same email
			slog.Info("Concurrent duplicate registration rejected", "email", insert.Email)
			monitoring.RecordBusinessEvent(ctx, "member_registration_duplicate", false)
			return duplicate()
		}
		slog.Error("Failed to insert member", "error", err, "email", insert.Email)
		monitoring.RecordBusinessEvent(ctx, "member_registration", false)
		return failure(http.StatusInternalServerError, KindStorage, err, models.ErrorResponse{Error: MsgRegisterFailed + storageMessage(err)})
	}

	slog.Info("Member registered", "email", insert.Email)
	monitoring.RecordBusinessEvent(ctx, "member_registration", true)
	return &RegistrationResult{
		Status: http.StatusCreated,
		Body:   models.MessageResponse{Message: MsgRegistered},
		Kind:   KindNone,
	}
}

// normalize builds the insert from a validated payload. An empty, absent or
// non-string phone is stored as NULL.
func normalize(payload map[string]any) *models.MemberInsert {
	insert := &models.MemberInsert{
		FullName: payload["full_name"].(string),
		Email:    payload["email"].(string),
	}
	if phone, ok := payload["phone"].(string); ok && phone != "" {
		insert.Phone = &phone
	}
	return insert
}

func duplicate() *RegistrationResult {
	return failure(http.StatusConflict, KindConflict, database.ErrDuplicateEmail, models.ErrorResponse{Error: MsgEmailRegistered})
}

func failure(status int, kind ErrorKind, err error, body models.ErrorResponse) *RegistrationResult {
	return &RegistrationResult{Status: status, Body: body, Kind: kind, Err: err}
}
