package resumable

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	var s Storage
	require.False(t, s.Has(0))
	require.Nil(t, s.Get(3))

	s.Set(3, int64(-7))
	s.Set(1, "hello")
	require.True(t, s.Has(3))
	require.False(t, s.Has(2))
	require.Equal(t, 4, s.Len())

	s.Delete(3)
	require.False(t, s.Has(3))
	s.Delete(3)
}

func TestStorageMarshal(t *testing.T) {
	ex := &Exception{
		Type:    "E",
		Message: "boom",
		Value:   int64(3),
		Trace:   []string{"f: throw x", traceBoundary, "f: endfinally #1"},
	}

	var s Storage
	s.Set(1, true)
	s.Set(2, int64(-42))
	s.Set(4, "text")
	s.Set(5, ex)
	s.Set(9, nil)

	b, err := s.MarshalAppend(nil)
	require.NoError(t, err)

	var r Storage
	require.NoError(t, r.Unmarshal(b))

	want := []Value{nil, true, int64(-42), nil, "text", ex}
	if diff := cmp.Diff(want, r.values); diff != "" {
		t.Errorf("storage mismatch (-want +got):\n%s", diff)
	}
}

func TestStorageMarshalUnsupportedValue(t *testing.T) {
	var s Storage
	s.Set(0, NewFuture())
	_, err := s.MarshalAppend(nil)
	require.Error(t, err)
}

func TestStorageUnmarshalInvalid(t *testing.T) {
	var s Storage
	require.Error(t, s.Unmarshal([]byte{0x12, 0x05, 0x08}))
}

func TestStorageMarshalSharedException(t *testing.T) {
	ex := &Exception{Type: "E", Message: "boom"}

	var s Storage
	s.Set(0, ex)
	s.Set(1, ex)
	b, err := s.MarshalAppend(nil)
	require.NoError(t, err)

	var r Storage
	require.NoError(t, r.Unmarshal(b))

	first, ok := r.Get(0).(*Exception)
	require.True(t, ok)
	second, ok := r.Get(1).(*Exception)
	require.True(t, ok)
	require.Equal(t, ex, first)
	require.Equal(t, ex, second)
	require.NotSame(t, first, second)
}
