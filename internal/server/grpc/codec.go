package grpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// decode fills dst from the JSON form of in.
func decode(in *structpb.Struct, dst any) error {
	if in == nil || len(in.GetFields()) == 0 {
		return nil
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return common.Validationf("malformed request: %v", err)
	}
	return nil
}

// encode converts a JSON-serializable value into a Struct. The value must
// marshal to a JSON object or null; null and nil give an empty Struct.
func encode(v any) (*structpb.Struct, error) {
	switch t := v.(type) {
	case nil:
		return emptyStruct(), nil
	case *structpb.Struct:
		if t == nil {
			return emptyStruct(), nil
		}
		return t, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	if bytes.Equal(b, []byte("null")) {
		return emptyStruct(), nil
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

func emptyStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}
}
