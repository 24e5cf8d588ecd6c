package policy

import (
	"errors"
	"testing"
)

func TestValidateTensorOffsets_NoOverlap(t *testing.T) {
	tensors := []TensorMeta{
		{Name: "layers.0.weight", Offset: 0, Size: 100},
		{Name: "layers.0.bias", Offset: 100, Size: 200},
	}

	if err := ValidateTensorOffsets(tensors, 300); err != nil {
		t.Errorf("expected no error for valid table, got: %v", err)
	}
}

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name     string
		tensors  []TensorMeta
		dataSize int64
		wantType string
	}{
		{
			name: "overlap",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 50, Size: 100},
			},
			dataSize: 200,
			wantType: "offset_overlap",
		},
		{
			name: "out of bounds",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 300},
			},
			dataSize: 200,
			wantType: "out_of_bounds",
		},
		{
			name: "negative offset",
			tensors: []TensorMeta{
				{Name: "a", Offset: -8, Size: 100},
			},
			dataSize: 200,
			wantType: "negative_offset",
		},
		{
			name: "exact boundary is fine",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 100, Size: 100},
			},
			dataSize: 200,
			wantType: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.dataSize)
			if tt.wantType == "" {
				if err != nil {
					t.Errorf("ValidateTensorOffsets() = %v, want nil", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T (%v)", err, err)
			}
			if verr.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", verr.Type, tt.wantType)
			}
		})
	}
}
