package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUUIDArrayValueAndScan(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	value, err := UUIDArray{a, b}.Value()
	require.NoError(t, err)
	require.Equal(t, `{"11111111-1111-1111-1111-111111111111","22222222-2222-2222-2222-222222222222"}`, value)

	var scanned UUIDArray
	require.NoError(t, scanned.Scan(value))
	require.Equal(t, UUIDArray{a, b}, scanned)

	var unquoted UUIDArray
	require.NoError(t, unquoted.Scan([]byte("{11111111-1111-1111-1111-111111111111}")))
	require.Equal(t, UUIDArray{a}, unquoted)
}

func TestUUIDArrayScanEmptyAndInvalid(t *testing.T) {
	var empty UUIDArray
	require.NoError(t, empty.Scan(nil))
	require.Empty(t, empty)
	require.NoError(t, empty.Scan("{}"))
	require.Empty(t, empty)

	var bad UUIDArray
	require.Error(t, bad.Scan("{not-a-uuid}"))
	require.Error(t, bad.Scan(42))
}

func TestUUIDArrayContainsAndDedupe(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	ids := UUIDArray{a, uuid.Nil, b, a}.Dedupe()
	require.Equal(t, UUIDArray{a, b}, ids)
	require.True(t, ids.Contains(b))
	require.False(t, ids.Contains(uuid.New()))
}
