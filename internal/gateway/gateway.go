// Package gateway talks to the re-encryption gateway, the external service
// that holds re-encryption keys and transforms ciphertext for a reader.
//
// The service is plain gRPC using protobuf well-known types as messages, so
// no generated stubs are involved:
//
//	service pre.ReencryptionGateway {
//	  rpc Rekey(google.protobuf.Struct) returns (google.protobuf.Empty);
//	  rpc Reencrypt(google.protobuf.Struct) returns (google.protobuf.BytesValue);
//	}
//
// Rekey takes {data_id, granted[], revoked[], threshold}; Reencrypt takes
// {data_id, reader, payload} with payload base64 encoded. Calls carry the
// caller's credential in the "authorization" metadata as "Token <key>".
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "pre.ReencryptionGateway"
	RekeyMethod     = "/" + ServiceName + "/Rekey"
	ReencryptMethod = "/" + ServiceName + "/Reencrypt"
)

var (
	ErrUnavailable     = errors.New("gateway unavailable")
	ErrUnauthenticated = errors.New("gateway rejected credential")
	ErrDenied          = errors.New("gateway denied re-encryption")
	ErrInvalidArgument = errors.New("invalid gateway request")
)

// RekeyRequest asks the gateway to issue re-encryption keys for granted
// readers and drop those of revoked readers.
type RekeyRequest struct {
	DataID    int64
	Granted   []string
	Revoked   []string
	Threshold int
}

// ReencryptRequest asks for payload transformed for reader.
type ReencryptRequest struct {
	DataID  int64
	Reader  string
	Payload []byte
}

// Gateway is what the rest of the code calls.
type Gateway interface {
	Rekey(ctx context.Context, req RekeyRequest) error
	Reencrypt(ctx context.Context, req ReencryptRequest) ([]byte, error)
}

func encodeRekey(r RekeyRequest) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"data_id":   r.DataID,
		"granted":   stringList(r.Granted),
		"revoked":   stringList(r.Revoked),
		"threshold": r.Threshold,
	})
}

func decodeRekey(s *structpb.Struct) (RekeyRequest, error) {
	id, err := intField(s, "data_id")
	if err != nil {
		return RekeyRequest{}, err
	}
	threshold, err := intField(s, "threshold")
	if err != nil {
		return RekeyRequest{}, err
	}
	return RekeyRequest{
		DataID:    id,
		Granted:   listField(s, "granted"),
		Revoked:   listField(s, "revoked"),
		Threshold: int(threshold),
	}, nil
}

func encodeReencrypt(r ReencryptRequest) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"data_id": r.DataID,
		"reader":  r.Reader,
		"payload": base64.StdEncoding.EncodeToString(r.Payload),
	})
}

func decodeReencrypt(s *structpb.Struct) (ReencryptRequest, error) {
	id, err := intField(s, "data_id")
	if err != nil {
		return ReencryptRequest{}, err
	}
	payload, err := base64.StdEncoding.DecodeString(s.GetFields()["payload"].GetStringValue())
	if err != nil {
		return ReencryptRequest{}, fmt.Errorf("%w: payload: %v", ErrInvalidArgument, err)
	}
	return ReencryptRequest{
		DataID:  id,
		Reader:  s.GetFields()["reader"].GetStringValue(),
		Payload: payload,
	}, nil
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func listField(s *structpb.Struct, name string) []string {
	values := s.GetFields()[name].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		if str := v.GetStringValue(); str != "" {
			out = append(out, str)
		}
	}
	return out
}

func intField(s *structpb.Struct, name string) (int64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgument, name)
	}
	return int64(n.NumberValue), nil
}
