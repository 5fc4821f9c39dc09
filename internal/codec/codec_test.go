package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/loracam/internal/errors"
)

func TestEncode(t *testing.T) {
	h, n := Encode("Hello")
	assert.Equal(t, "48656C6C6F", h)
	assert.Equal(t, 5, n)

	h, n = Encode("")
	assert.Equal(t, "", h)
	assert.Equal(t, 0, n)

	// 多字节字符按UTF-8字节计数
	h, n = Encode("温度")
	assert.Equal(t, "E6B8A9E5BAA6", h)
	assert.Equal(t, 6, n)
}

func TestDecode(t *testing.T) {
	text, err := Decode("48656C6C6F")
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	text, err = Decode("48656c6c6f")
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	// 非法UTF-8字节被丢弃
	text, err = Decode("48FF69")
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)
}

func TestDecodeInvalidHex(t *testing.T) {
	for _, h := range []string{"ABC", "ZZ", "48656C6C6G"} {
		_, err := Decode(h)
		assert.True(t, apperrors.Is(err, apperrors.ErrEncoding), h)
	}
}

func TestRoundTripPrintableASCII(t *testing.T) {
	var all []byte
	for c := byte(0x20); c < 0x7f; c++ {
		all = append(all, c)
	}

	inputs := []string{"", "a", "Hello", "temp=23.5;hum=41", string(all)}
	for i := range all {
		inputs = append(inputs, string(all[i:]))
	}

	for _, s := range inputs {
		h, n := Encode(s)
		assert.Equal(t, 0, len(h)%2)
		assert.Equal(t, len(h), 2*n)
		assert.Equal(t, len(s), n)

		decoded, err := Decode(h)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}
