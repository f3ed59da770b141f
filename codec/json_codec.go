package codec

import "encoding/json"

// JSONCodec uses the standard library encoding/json. It is kept around as
// a debug/interop codec a Registrant can choose per method: human-readable
// on the wire, useful for a method whose payload doesn't need to be
// protobuf (e.g. a hand-curled metrics endpoint hit from a browser).
type JSONCodec[T any] struct{}

func (c JSONCodec[T]) Encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}
	return data, nil
}

func (c JSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, &Error{Op: "decode", Err: err}
	}
	return v, nil
}

func (c JSONCodec[T]) Clone() Codec[T] { return JSONCodec[T]{} }
