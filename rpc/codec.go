package rpc

import "github.com/fxamacker/cbor/v2"

// EncodeFrame encodes a Frame to CBOR bytes.
func EncodeFrame(f *Frame) ([]byte, error) {
	return cbor.Marshal(f)
}

// DecodeFrame decodes CBOR bytes into a Frame.
func DecodeFrame(data []byte) (*Frame, error) {
	frame := &Frame{}
	if err := cbor.Unmarshal(data, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
