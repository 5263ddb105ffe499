package service

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/candleclock/display"
)

func viewStruct(v display.View) (*structpb.Struct, error) {
	fields := map[string]any{
		"state":             v.State,
		"mode":              v.Mode,
		"remaining_seconds": v.Remaining,
		"resets":            v.Resets,
		"display":           v.Display,
	}
	if !v.Boundary.IsZero() {
		fields["boundary"] = v.Boundary.UTC().Format(time.RFC3339)
	}
	return structpb.NewStruct(fields)
}

// ViewFromStruct decodes a countdown message.
func ViewFromStruct(s *structpb.Struct) (display.View, error) {
	f := s.GetFields()
	v := display.View{
		State:     f["state"].GetStringValue(),
		Mode:      f["mode"].GetStringValue(),
		Remaining: int64(f["remaining_seconds"].GetNumberValue()),
		Resets:    int64(f["resets"].GetNumberValue()),
		Display:   f["display"].GetStringValue(),
	}
	if b := f["boundary"].GetStringValue(); b != "" {
		t, err := time.Parse(time.RFC3339, b)
		if err != nil {
			return display.View{}, fmt.Errorf("service: boundary %q: %w", b, err)
		}
		v.Boundary = t
	}
	if v.State == "" {
		return display.View{}, fmt.Errorf("service: message has no state")
	}
	return v, nil
}
