package browserauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifierDefaults(t *testing.T) {
	c, err := NewClassifier(DefaultPatterns())
	require.NoError(t, err)

	tests := []struct {
		url  string
		want State
	}{
		{"https://tg.glasir.fo", StateInitial},
		{"https://tg.glasir.fo/", StateInitial},
		{"https://tg.glasir.fo/login?ReturnUrl=%2F132n%2F", StateLoginPage},
		{"https://login.microsoftonline.com/common/oauth2/authorize?client_id=x", StateIDPLogin},
		{"https://adfs.glasir.fo/adfs/ls/?client-request-id=y", StateFederation},
		{"https://tg.glasir.fo/auth/openid/return?code=z", StateReturnPage},
		{"https://tg.glasir.fo/132n/", StateFinalPage},
		{"https://tg.glasir.fo/132n/Default.aspx", StateFinalPage},
		{"https://example.com/somewhere", StateUnknown},
		{"https://tg.glasir.fo/other", StateUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.url), tt.url)
	}
}

func TestClassifierFirstMatchWins(t *testing.T) {
	c, err := NewClassifier([]Pattern{
		{StateLoginPage, `^https://portal\.test/`},
		{StateFinalPage, `^https://portal\.test/done`},
	})
	require.NoError(t, err)

	// Both patterns match; the earlier one decides.
	assert.Equal(t, StateLoginPage, c.Classify("https://portal.test/done"))
}

func TestClassifierRejectsBadPattern(t *testing.T) {
	_, err := NewClassifier([]Pattern{{StateInitial, `(unclosed`}})
	assert.Error(t, err)
}
