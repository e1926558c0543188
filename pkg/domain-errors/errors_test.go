package domainerrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeMatching(t *testing.T) {
	t.Run("wrapped domain error keeps its code", func(t *testing.T) {
		base := New(CodeDuplicateConfirmation, "already confirmed")
		err := fmt.Errorf("ingest: %w", base)

		assert.True(t, Is(err, CodeDuplicateConfirmation))
		assert.False(t, Is(err, CodeForbidden))
		assert.Equal(t, CodeDuplicateConfirmation, CodeOf(err))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Equal(t, CodeInternal, From(err).Code)
	})

	t.Run("wrap exposes cause", func(t *testing.T) {
		cause := errors.New("db down")
		err := Wrap(cause, CodeInternal, "failed to insert claim")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestClassification(t *testing.T) {
	assert.True(t, CodeOverClaimLimit.IsQuota())
	assert.True(t, CodeOverRegistrationLimit.IsQuota())
	assert.False(t, CodeForbidden.IsQuota())
	assert.True(t, CodeUnknownReference.IsClientError())
	assert.False(t, CodeInternal.IsClientError())
}

func TestJSONOmitsCause(t *testing.T) {
	err := Wrap(errors.New("secret detail"), CodeUnrecordedReference, "no matching record")

	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	assert.JSONEq(t, `{"code":"unrecorded_reference","message":"no matching record"}`, string(data))

	var back Error
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, CodeUnrecordedReference, back.Code)
	assert.Nil(t, back.Err)
}
