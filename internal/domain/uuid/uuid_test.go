package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/creatordash/internal/domain/uuid"
)

func TestNewUUID(t *testing.T) {
	a := uuid.NewUUID()
	b := uuid.NewUUID()

	assert.False(t, a.IsZero())
	assert.Len(t, a.String(), 36)
	assert.NotEqual(t, a, b)
}

func TestParseUUID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "supabase user id", input: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "empty", input: "", wantErr: true},
		{name: "numeric id", input: "42", wantErr: true},
		{name: "garbage", input: "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := uuid.ParseUUID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, id.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

func TestMustParseUUID(t *testing.T) {
	assert.NotPanics(t, func() {
		uuid.MustParseUUID("550e8400-e29b-41d4-a716-446655440000")
	})
	assert.Panics(t, func() {
		uuid.MustParseUUID("not-a-uuid")
	})
}
