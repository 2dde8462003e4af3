package fingerprint_test

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fingerprint"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func mustParse(t *testing.T, s string) payload.Object {
	t.Helper()
	obj, err := payload.ParseObject([]byte(s))
	require.NoError(t, err)
	return obj
}

func TestCompute_KeyOrderIndependent(t *testing.T) {
	a := mustParse(t, `{"a":1,"b":2}`)
	b := mustParse(t, `{"b":2,"a":1}`)

	fa := fingerprint.Compute(a)
	assert.Equal(t, fa, fingerprint.Compute(b))
	assert.Equal(t, md5Hex(`{"a":1,"b":2}`), fa)
	assert.Len(t, fa, fingerprint.Length)
	assert.True(t, fingerprint.Valid(fa))
}

func TestCompute_NestedOrderIndependent(t *testing.T) {
	a := mustParse(t, `{"meta":{"sheet":"2024","row":5},"items":[{"y":1,"x":2}],"Клиент":"Иванов"}`)
	b := mustParse(t, `{"Клиент":"Иванов","items":[{"x":2,"y":1}],"meta":{"row":5,"sheet":"2024"}}`)

	assert.Equal(t, fingerprint.Compute(a), fingerprint.Compute(b))
}

func TestCompute_Sensitivity(t *testing.T) {
	base := mustParse(t, `{"Date":"16.07.2023","Total RUB":"1 234,56","Клиент":"Иванов"}`)
	baseFP := fingerprint.Compute(base)

	testCases := []struct {
		name string
		row  string
	}{
		{"value changed", `{"Date":"16.07.2023","Total RUB":"1 234,57","Клиент":"Иванов"}`},
		{"key renamed", `{"Дата":"16.07.2023","Total RUB":"1 234,56","Клиент":"Иванов"}`},
		{"key added", `{"Date":"16.07.2023","Total RUB":"1 234,56","Клиент":"Иванов","x":null}`},
		{"key removed", `{"Date":"16.07.2023","Total RUB":"1 234,56"}`},
		{"type changed", `{"Date":"16.07.2023","Total RUB":1234.56,"Клиент":"Иванов"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, baseFP, fingerprint.Compute(mustParse(t, tc.row)))
		})
	}
}

func TestCompute_NonASCIIUnescaped(t *testing.T) {
	row := mustParse(t, `{"Клиент":"Иванов"}`)
	assert.Equal(t, md5Hex(`{"Клиент":"Иванов"}`), fingerprint.Compute(row))
}

func TestCompute_Empty(t *testing.T) {
	assert.Equal(t, md5Hex(`{}`), fingerprint.Compute(payload.Object{}))
	assert.Equal(t, md5Hex(`{}`), fingerprint.Compute(nil))
}

func TestComputeJSON(t *testing.T) {
	fp, err := fingerprint.ComputeJSON([]byte(`{ "b": 2, "a": 1 }`))
	require.NoError(t, err)
	assert.Equal(t, md5Hex(`{"a":1,"b":2}`), fp)

	_, err = fingerprint.ComputeJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestComputeValue(t *testing.T) {
	row := mustParse(t, `{"b":2,"a":1}`)
	assert.Equal(t, fingerprint.Compute(row), fingerprint.ComputeValue(payload.ObjectOf(row)))
	assert.Equal(t, md5Hex(`[1,"x"]`), fingerprint.ComputeValue(payload.Array(payload.Int(1), payload.String("x"))))
	assert.Equal(t, md5Hex(`"text"`), fingerprint.ComputeValue(payload.String("text")))
}

func TestValid(t *testing.T) {
	assert.True(t, fingerprint.Valid("608de49a4600dbb5b173492759792e4a"))
	assert.False(t, fingerprint.Valid(""))
	assert.False(t, fingerprint.Valid("608DE49A4600DBB5B173492759792E4A"))
	assert.False(t, fingerprint.Valid("608de49a"))
}
