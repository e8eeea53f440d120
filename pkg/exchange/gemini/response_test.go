package gemini

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini/pkg/core"
)

func TestDecode_Success(t *testing.T) {
	ticker, err := Decode[*core.Ticker]([]byte(`{
		"ask": "977.59",
		"bid": "977.35",
		"last": "977.65",
		"volume": {"BTC": "2210.505328803", "USD": "2135477.463379586263", "timestamp": 1483018200000}
	}`))
	require.NoError(t, err)
	assert.Equal(t, core.Amount("977.59"), ticker.Ask)
	assert.Equal(t, core.Amount("977.35"), ticker.Bid)
	assert.Equal(t, core.Amount("977.65"), ticker.Last)
	assert.Equal(t, int64(1483018200000), ticker.Volume.Timestamp)
	assert.Equal(t, core.Amount("2135477.463379586263"), ticker.Volume.Amounts["USD"])
}

func TestDecode_SliceSuccess(t *testing.T) {
	balances, err := Decode[[]core.Balance]([]byte(`[
		{"type":"exchange","currency":"BTC","amount":"1154.62034001","available":"1129.10517279","availableForWithdrawal":"1129.10517279"},
		{"type":"exchange","currency":"USD","amount":"18722.79","available":"14481.62","availableForWithdrawal":"14481.62"}
	]`))
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Currency)
	assert.Equal(t, core.Amount("14481.62"), balances[1].Available)
}

func TestDecode_SemanticError(t *testing.T) {
	raw := []byte(`{"result":"error","reason":"InvalidSignature","message":"InvalidSignature"}`)

	t.Run("struct target", func(t *testing.T) {
		_, err := DecodeStatus[*core.Ticker](raw, 400)
		var exErr *core.ExchangeError
		require.ErrorAs(t, err, &exErr)
		assert.Equal(t, "error", exErr.Result)
		assert.Equal(t, "InvalidSignature", exErr.Reason)
		assert.Equal(t, "InvalidSignature", exErr.Message)
		assert.Equal(t, 400, exErr.StatusCode)
		assert.True(t, core.IsAuthenticationError(err))
	})

	t.Run("slice target", func(t *testing.T) {
		_, err := Decode[[]core.Balance](raw)
		assert.True(t, core.IsSemanticError(err))
	})

	t.Run("ok shaped target", func(t *testing.T) {
		_, err := Decode[*core.CancelAllResult](raw)
		assert.True(t, core.IsSemanticError(err))
	})

	t.Run("success status", func(t *testing.T) {
		_, err := DecodeStatus[[]string]([]byte(`{"result":"error","reason":"Maintenance","message":"down"}`), 200)
		var exErr *core.ExchangeError
		require.ErrorAs(t, err, &exErr)
		assert.Equal(t, core.ErrorTypeServerError, exErr.Type)
	})
}

func TestDecode_Malformed(t *testing.T) {
	raw := []byte(`<html><body>502 Bad Gateway</body></html>`)

	_, err := Decode[*core.Ticker](raw)
	var malformed *core.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, string(raw), malformed.Body)
	assert.False(t, malformed.Truncated)
	assert.NotNil(t, malformed.Err)
}

func TestDecode_NotErrorResult(t *testing.T) {
	_, err := Decode[*core.Ticker]([]byte(`{"result":"ok"}`))
	assert.True(t, core.IsMalformedResponse(err))
}

func TestDecode_MissingRequiredField(t *testing.T) {
	_, err := Decode[*core.Ticker]([]byte(`{"ask":"1","bid":"2"}`))
	var malformed *core.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Err.Error(), "Last")
}

func TestDecode_InvalidUTF8(t *testing.T) {
	_, err := Decode[*core.Ticker]([]byte{0xff, 0xfe, 0xfd})
	assert.True(t, core.IsTransportError(err))
	assert.False(t, core.IsMalformedResponse(err))
}

func TestDecode_BoundedBody(t *testing.T) {
	raw := []byte(strings.Repeat("é", maxDiagnosticBody))

	_, err := Decode[*core.Ticker](raw)
	var malformed *core.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.True(t, malformed.Truncated)
	assert.LessOrEqual(t, len(malformed.Body), maxDiagnosticBody)
	assert.True(t, strings.HasPrefix(string(raw), malformed.Body))
}
