// Package jsoncodec is the JSON encoder used for diagnostics and CLI output.
package jsoncodec

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

// String renders v for error messages. Encoding failures fall back to %+v.
func String(v any) string {
	data, err := defaultConfig.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}

// EncodeIndent writes v to w as indented JSON followed by a newline.
func EncodeIndent(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
