package presto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypeSignature_Scalar(t *testing.T) {
	sig, err := ParseTypeSignature("bigint")
	require.NoError(t, err)
	assert.Equal(t, "bigint", sig.Base)
	assert.False(t, sig.IsParameterized())
	assert.Equal(t, "bigint", sig.String())
}

func TestParseTypeSignature_Varchar(t *testing.T) {
	sig, err := ParseTypeSignature("varchar(32)")
	require.NoError(t, err)
	assert.Equal(t, "varchar", sig.Base)
	require.Len(t, sig.Parameters, 1)
	assert.Equal(t, ParamKindLong, sig.Parameters[0].Kind)
	assert.Equal(t, int64(32), sig.Parameters[0].Long)
}

func TestParseTypeSignature_Decimal(t *testing.T) {
	sig, err := ParseTypeSignature("decimal(10,2)")
	require.NoError(t, err)
	require.Len(t, sig.Parameters, 2)
	assert.Equal(t, int64(10), sig.Parameters[0].Long)
	assert.Equal(t, int64(2), sig.Parameters[1].Long)
}

func TestParseTypeSignature_Array(t *testing.T) {
	sig, err := ParseTypeSignature("array(integer)")
	require.NoError(t, err)
	assert.Equal(t, "array", sig.Base)
	require.Len(t, sig.Parameters, 1)
	assert.Equal(t, ParamKindType, sig.Parameters[0].Kind)
	assert.Equal(t, "integer", sig.Parameters[0].Type.Base)
}

func TestParseTypeSignature_Map(t *testing.T) {
	sig, err := ParseTypeSignature("map(varchar,bigint)")
	require.NoError(t, err)
	require.Len(t, sig.Parameters, 2)
	assert.Equal(t, "varchar", sig.Parameters[0].Type.Base)
	assert.Equal(t, "bigint", sig.Parameters[1].Type.Base)
}

func TestParseTypeSignature_Row(t *testing.T) {
	sig, err := ParseTypeSignature(`row("a" bigint,"b" varchar(10))`)
	require.NoError(t, err)
	require.Len(t, sig.Parameters, 2)
	assert.Equal(t, ParamKindNamedType, sig.Parameters[0].Kind)
	assert.Equal(t, "a", sig.Parameters[0].Name)
	assert.Equal(t, "bigint", sig.Parameters[0].Type.Base)
	assert.Equal(t, "b", sig.Parameters[1].Name)
}

func TestParseTypeSignature_NestedRowInArray(t *testing.T) {
	sig, err := ParseTypeSignature(`array(row("x" double,"y" double))`)
	require.NoError(t, err)
	elem := sig.Parameters[0].Type
	assert.Equal(t, "row", elem.Base)
	require.Len(t, elem.Parameters, 2)
	assert.Equal(t, "x", elem.Parameters[0].Name)
}

func TestParseTypeSignature_QuotedNameWithEscapedQuote(t *testing.T) {
	sig, err := ParseTypeSignature(`row("a""b" bigint)`)
	require.NoError(t, err)
	assert.Equal(t, `a"b`, sig.Parameters[0].Name)
}

func TestParseTypeSignature_UnbalancedParens(t *testing.T) {
	_, err := ParseTypeSignature("array(bigint")
	require.Error(t, err)
	var sigErr *InvalidTypeSignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestParseTypeSignature_TrailingInput(t *testing.T) {
	_, err := ParseTypeSignature("bigint garbage")
	require.Error(t, err)
}

func TestParseTypeSignature_ArrayWrongParamCount(t *testing.T) {
	_, err := ParseTypeSignature("array(bigint,bigint)")
	require.Error(t, err)
}

func TestParseTypeSignature_MapWrongParamCount(t *testing.T) {
	_, err := ParseTypeSignature("map(bigint)")
	require.Error(t, err)
}

func TestParseTypeSignature_RowRequiresNamedFields(t *testing.T) {
	_, err := ParseTypeSignature("row(bigint)")
	require.Error(t, err)
}

func TestParseTypeSignature_RoundTripString(t *testing.T) {
	sig, err := ParseTypeSignature(`row("a" bigint)`)
	require.NoError(t, err)
	assert.Equal(t, `row("a" bigint)`, sig.String())
}
