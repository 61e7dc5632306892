package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("quote failed: %w", NewInvalidHoursError("0"))

	assert.True(t, stderrors.Is(err, ErrInvalidHours))
	assert.False(t, stderrors.Is(err, ErrInvalidDate))
}

func TestAsUnwraps(t *testing.T) {
	err := fmt.Errorf("load: %w", NewTemplateNotFoundError("acme", "clean"))

	ee, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, ClassNotFound, ee.Class)
	assert.Equal(t, ErrCodeTemplateNotFound, ee.Code)

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestErrorText(t *testing.T) {
	err := NewInvalidTemplateError("clean", []string{"duration must be positive", "base price must not be negative"})

	assert.Equal(t, ClassConfiguration, err.Class)
	assert.Equal(t,
		"[configuration] INVALID_TEMPLATE: template clean configuration is invalid: duration must be positive; base price must not be negative",
		err.Error())
	assert.Contains(t, NewInvalidTimeError("25:00").Error(), "(field: time)")
}
