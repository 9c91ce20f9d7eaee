package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowList_IsAdmin(t *testing.T) {
	allowList := NewAllowList([]string{"founder@herayorg.com", " Ops@HerayOrg.com ", ""})

	tests := []struct {
		email string
		want  bool
	}{
		{"founder@herayorg.com", true},
		{"FOUNDER@herayorg.com", true},
		{"  founder@herayorg.com  ", true},
		{"ops@herayorg.com", true},
		{"random@example.com", false},
		{"founder@herayorg.co", false},
		{"herayorg.com", false},
		{"@herayorg.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, allowList.IsAdmin(tt.email))
		})
	}
	assert.Equal(t, 2, allowList.Len())
	assert.Equal(t, []string{"founder@herayorg.com", "ops@herayorg.com"}, allowList.Emails())
}

func TestAllowList_Empty(t *testing.T) {
	allowList := NewAllowList(nil)
	assert.False(t, allowList.IsAdmin("founder@herayorg.com"))
	assert.Equal(t, 0, allowList.Len())

	var missing *AllowList
	assert.False(t, missing.IsAdmin("founder@herayorg.com"))
	assert.Equal(t, 0, missing.Len())
}
