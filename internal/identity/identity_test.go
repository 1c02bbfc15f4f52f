package identity

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderResolver(t *testing.T) {
	tests := []struct {
		name   string
		header string
		set    map[string]string
		wantID string
		wantOK bool
	}{
		{"default header", "", map[string]string{"X-User-ID": "user-1"}, "user-1", true},
		{"custom header", "X-Auth-Subject", map[string]string{"X-Auth-Subject": " sub-9 "}, "sub-9", true},
		{"missing header", "", nil, "", false},
		{"blank header", "", map[string]string{"X-User-ID": "   "}, "", false},
		{"other header ignored", "X-Auth-Subject", map[string]string{"X-User-ID": "user-1"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/credits", nil)
			for k, v := range tt.set {
				r.Header.Set(k, v)
			}

			id, ok := NewHeaderResolver(tt.header).CurrentUser(r)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestHeaderResolver_DefaultName(t *testing.T) {
	assert.Equal(t, DefaultHeader, NewHeaderResolver("").Header())
}

func TestUserContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	id, ok := UserFromContext(WithUser(context.Background(), "user-1"))
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)

	_, ok = UserFromContext(WithUser(context.Background(), ""))
	assert.False(t, ok)
}
