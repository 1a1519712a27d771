package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	t.Run("normalizes case and whitespace", func(t *testing.T) {
		c, err := ParseCurrency(" ngn ")
		require.NoError(t, err)
		assert.Equal(t, NGN, c)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseCurrency("")
		assert.ErrorIs(t, err, ErrEmptyCurrency)
	})

	t.Run("rejects unknown code", func(t *testing.T) {
		_, err := ParseCurrency("ZZZ")
		assert.Error(t, err)
	})
}

func TestCurrencyScale(t *testing.T) {
	assert.Equal(t, 2, USD.Scale())
	assert.Equal(t, 2, NGN.Scale())
	assert.Equal(t, 0, UGX.Scale())
}

func TestFromMajor(t *testing.T) {
	t.Run("converts two-decimal currency", func(t *testing.T) {
		m, err := FromMajor(decimal.RequireFromString("1125.00"), NGN)
		require.NoError(t, err)
		assert.Equal(t, int64(112500), m.Minor())
	})

	t.Run("converts without float drift", func(t *testing.T) {
		m, err := FromMajorString("0.29", USD)
		require.NoError(t, err)
		assert.Equal(t, int64(29), m.Minor())
	})

	t.Run("zero-decimal currency", func(t *testing.T) {
		m, err := FromMajorString("5000", UGX)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), m.Minor())
	})

	t.Run("rejects sub-minor precision", func(t *testing.T) {
		_, err := FromMajorString("10.005", USD)
		assert.ErrorIs(t, err, ErrExcessPrecision)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := FromMajorString("ten", USD)
		assert.Error(t, err)
	})
}

func TestMoneyArithmetic(t *testing.T) {
	a := MustMoney(112500, NGN)
	b := MustMoney(50000, NGN)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(62500), diff.Minor())

	sum, err := diff.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Equals(a))

	gt, err := a.GreaterThan(b)
	require.NoError(t, err)
	assert.True(t, gt)

	_, err = a.Add(MustMoney(1, USD))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "625.00 NGN", MustMoney(62500, NGN).String())
	assert.Equal(t, "5000 UGX", MustMoney(5000, UGX).String())
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(MustMoney(10000, KES))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount_minor":10000,"currency":"KES"}`, string(data))

	var m Money
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, int64(10000), m.Minor())
	assert.Equal(t, KES, m.Currency())
}
