package pool_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-keypool-service/internal/pool"
)

func TestAddKeyInput_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		input   pool.AddKeyInput
		wantErr string
	}{
		{name: "valid minimal", input: pool.AddKeyInput{Name: "key_1", Value: "sk-1"}},
		{name: "valid with metadata", input: pool.AddKeyInput{Name: "k-2", Value: "v", Email: "ops@example.com", Password: "hunter2"}},
		{name: "missing name", input: pool.AddKeyInput{Value: "v"}, wantErr: "name is required"},
		{name: "name with spaces", input: pool.AddKeyInput{Name: "my key", Value: "v"}, wantErr: "name may only contain"},
		{name: "blank value", input: pool.AddKeyInput{Name: "k", Value: "   "}, wantErr: "must not be blank"},
		{name: "bad email", input: pool.AddKeyInput{Name: "k", Value: "v", Email: "nope"}, wantErr: "must be a valid email address"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, pool.ErrInvalidInput)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestFieldValidators(t *testing.T) {
	assert.NoError(t, pool.ValidateName("abc_1-2"))
	assert.ErrorIs(t, pool.ValidateName(""), pool.ErrInvalidInput)
	assert.ErrorIs(t, pool.ValidateName("a/b"), pool.ErrInvalidInput)

	assert.NoError(t, pool.ValidateValue("secret"))
	assert.ErrorIs(t, pool.ValidateValue(""), pool.ErrInvalidInput)

	assert.NoError(t, pool.ValidateEmail(""))
	assert.NoError(t, pool.ValidateEmail("a@b.io"))
	assert.ErrorIs(t, pool.ValidateEmail("a@b"), pool.ErrInvalidInput)
}

func TestService_AddKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	t.Run("Success - stores metadata", func(t *testing.T) {
		rec, err := svc.AddKey(ctx, pool.AddKeyInput{Name: "k1", Value: "v1", Email: "a@b.io"})

		require.NoError(t, err)
		assert.Equal(t, "a@b.io", rec.Email)
		assert.True(t, rec.Active)
		assert.True(t, rec.Current)
	})

	t.Run("Failure - invalid input never reaches the store", func(t *testing.T) {
		_, err := svc.AddKey(ctx, pool.AddKeyInput{Name: "bad name", Value: "v"})

		assert.ErrorIs(t, err, pool.ErrInvalidInput)
		p, _ := svc.List(ctx)
		assert.Len(t, p, 1)
	})
}
