package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/miladnoo/Heray/monitoring"
	"github.com/miladnoo/Heray/v1/models"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// GormRepository implements MemberRepository using GORM (works with SQLite or PostgreSQL)
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new repository (works with SQLite or PostgreSQL)
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// FindByEmail looks a member up by normalized email
func (r *GormRepository) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	start := time.Now()
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("email_normalized = ?", models.NormalizeEmail(email)).
		Limit(1).
		Find(&members).Error
	monitoring.RecordDBLatency(ctx, "members", "select", time.Since(start))
	if err != nil {
		return nil, newStorageError("select", fmt.Errorf("failed to look up member by email: %w", err))
	}
	if len(members) == 0 {
		return nil, nil
	}
	return &members[0], nil
}

// CreateMember inserts a new member
func (r *GormRepository) CreateMember(ctx context.Context, insert *models.MemberInsert) error {
	start := time.Now()
	member := insert.ToMember()
	err := r.db.WithContext(ctx).Create(member).Error
	monitoring.RecordDBLatency(ctx, "members", "insert", time.Since(start))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return newStorageError("insert", err)
	}
	return nil
}

// ListMembers returns all members ordered by creation time, newest first
func (r *GormRepository) ListMembers(ctx context.Context) ([]models.Member, error) {
	start := time.Now()
	var members []models.Member
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&members).Error
	monitoring.RecordDBLatency(ctx, "members", "list", time.Since(start))
	if err != nil {
		return nil, newStorageError("list", err)
	}
	if members == nil {
		members = []models.Member{}
	}
	return members, nil
}

// Ping checks the database connection
func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection pool
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// isUniqueViolation recognizes unique-constraint failures from every dialect we run on
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
