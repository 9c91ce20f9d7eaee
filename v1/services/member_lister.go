package services

import (
	"context"
	"log/slog"

	"github.com/miladnoo/Heray/v1/database"
	"github.com/miladnoo/Heray/v1/models"
)

// MemberListing is what an authorized admin sees. A read failure leaves
// Members empty and explains itself in Warning.
type MemberListing struct {
	Members []models.Member
	Warning string
}

// MemberLister reads the member list for authorized admins
type MemberLister struct {
	repo database.MemberRepository
}

// NewMemberLister creates a new member lister
func NewMemberLister(repo database.MemberRepository) *MemberLister {
	return &MemberLister{repo: repo}
}

// ListMembers returns every member, newest first. Callers must have
// authorized the admin before calling.
func (l *MemberLister) ListMembers(ctx context.Context) MemberListing {
	members, err := l.repo.ListMembers(ctx)
	if err != nil {
		slog.Error("Failed to fetch members", "error", err)
		return MemberListing{
			Members: []models.Member{},
			Warning: MsgFetchMembersFailed + storageMessage(err),
		}
	}
	return MemberListing{Members: members}
}
