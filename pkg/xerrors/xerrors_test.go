package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:    http.StatusBadRequest,
		KindConflict:      http.StatusConflict,
		KindNotFound:      http.StatusNotFound,
		KindUnauthorized:  http.StatusUnauthorized,
		KindForbidden:     http.StatusForbidden,
		KindConfiguration: http.StatusInternalServerError,
		KindUpstream:      http.StatusBadGateway,
		KindInternal:      http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}

func TestKindOfWrappedChain(t *testing.T) {
	root := errors.New("dial tcp: refused")
	err := fmt.Errorf("send mail: %w", Upstream("Failed to send OTP email.", root))

	assert.Equal(t, KindUpstream, KindOf(err))
	assert.True(t, Is(err, KindUpstream))
	assert.ErrorIs(t, err, root)

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "Failed to send OTP email.", e.Message)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestConfigurationHidesCause(t *testing.T) {
	err := Configuration(errors.New("jwt access secret empty"))
	assert.Equal(t, ConfigurationMessage, err.Message)
	assert.Contains(t, err.Error(), "jwt access secret empty")
}
