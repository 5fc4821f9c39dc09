// Package codec 负责文本载荷与十六进制字符串之间的转换
package codec

import (
	"encoding/hex"
	"strings"

	apperrors "github.com/wfunc/loracam/internal/errors"
)

// Encode 将文本编码为大写十六进制，返回十六进制串与字节长度
func Encode(text string) (string, int) {
	h := strings.ToUpper(hex.EncodeToString([]byte(text)))
	return h, len(h) / 2
}

// Decode 将十六进制还原为文本，无法解码的字符直接丢弃
func Decode(h string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrEncoding, "十六进制载荷 %q", h)
	}
	return strings.ToValidUTF8(string(raw), ""), nil
}
