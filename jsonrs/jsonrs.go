// Package jsonrs is the JSON codec used across the service. The implementation is
// selected through configuration so that it can be swapped without touching callers.
package jsonrs

import (
	"encoding/json"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/rudderlabs/rudder-go-kit/config"
)

const (
	// JsoniterLib is the library name for github.com/json-iterator/go
	JsoniterLib = "jsoniter"
	// StdLib is the library name for encoding/json
	StdLib = "std"
)

// JSON is the interface that wraps the basic JSON operations.
type JSON interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	MarshalToString(v any) (string, error)
	NewDecoder(r io.Reader) Decoder
	NewEncoder(w io.Writer) Encoder
}

// Decoder is the interface that wraps the basic JSON decoder operations.
type Decoder interface {
	Decode(v any) error
}

// Encoder is the interface that wraps the basic JSON encoder operations.
type Encoder interface {
	Encode(v any) error
}

// Default is the codec used by the package level functions.
var Default JSON = &jsoniterJSON{}

// New returns the codec named by the Json.Library config key.
func New(conf *config.Config) JSON {
	switch strings.ToLower(conf.GetStringVar(JsoniterLib, "Json.Library")) {
	case StdLib:
		return &stdJSON{}
	default:
		return &jsoniterJSON{}
	}
}

func Marshal(v any) ([]byte, error)         { return Default.Marshal(v) }
func Unmarshal(data []byte, v any) error    { return Default.Unmarshal(data, v) }
func MarshalToString(v any) (string, error) { return Default.MarshalToString(v) }
func NewDecoder(r io.Reader) Decoder        { return Default.NewDecoder(r) }
func NewEncoder(w io.Writer) Encoder        { return Default.NewEncoder(w) }

type jsoniterJSON struct{}

func (*jsoniterJSON) Marshal(v any) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
}

func (*jsoniterJSON) Unmarshal(data []byte, v any) error {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, v)
}

func (*jsoniterJSON) MarshalToString(v any) (string, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(v)
}

func (*jsoniterJSON) NewDecoder(r io.Reader) Decoder {
	return jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(r)
}

func (*jsoniterJSON) NewEncoder(w io.Writer) Encoder {
	return jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
}

type stdJSON struct{}

func (*stdJSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (*stdJSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (*stdJSON) MarshalToString(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func (*stdJSON) NewDecoder(r io.Reader) Decoder { return json.NewDecoder(r) }
func (*stdJSON) NewEncoder(w io.Writer) Encoder { return json.NewEncoder(w) }
