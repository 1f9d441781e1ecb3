package valuez

import (
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Codec converts between documents and store values. Implement this
// interface to load stores from other formats like TOML or HCL.
type Codec interface {
	// Unmarshal deserializes bytes into a value.
	Unmarshal(data []byte, v any) error

	// Marshal serializes a value.
	Marshal(v any) ([]byte, error)

	// ContentType returns the MIME type for observability and debugging.
	ContentType() string
}

// JSONCodec implements Codec using encoding/json.
type JSONCodec struct{}

// Unmarshal deserializes JSON bytes into v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Marshal serializes v as JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ContentType returns the JSON MIME type.
func (JSONCodec) ContentType() string {
	return "application/json"
}

// YAMLCodec implements Codec using gopkg.in/yaml.v3.
type YAMLCodec struct{}

// Unmarshal deserializes YAML bytes into v.
func (YAMLCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// Marshal serializes v as YAML.
func (YAMLCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// ContentType returns the YAML MIME type.
func (YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

// JSONCCodec reads JSON with comments and trailing commas. It writes plain
// JSON.
type JSONCCodec struct{}

// Unmarshal strips comments and trailing commas, then decodes the JSON.
func (JSONCCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(jsonc.ToJSON(data), v)
}

// Marshal serializes v as JSON.
func (JSONCCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ContentType returns the JSON MIME type.
func (JSONCCodec) ContentType() string {
	return "application/json"
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("valuez: CBOR encoder initialization failed: " + err.Error())
	}
	// Nested maps decode as map[string]any so that they can be applied to
	// nested stores.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("valuez: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORCodec implements Codec using deterministic CBOR encoding.
type CBORCodec struct{}

// Unmarshal deserializes CBOR bytes into v.
func (CBORCodec) Unmarshal(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}

// Marshal serializes v as core deterministic CBOR.
func (CBORCodec) Marshal(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

// ContentType returns the CBOR MIME type.
func (CBORCodec) ContentType() string {
	return "application/cbor"
}

var (
	_ Codec = JSONCodec{}
	_ Codec = YAMLCodec{}
	_ Codec = JSONCCodec{}
	_ Codec = CBORCodec{}
)
