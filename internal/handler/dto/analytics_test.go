package dto

import (
	"encoding/json"
	"testing"
)

func TestID_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{"string", `{"productId":"sku-7"}`, "sku-7", false},
		{"integer", `{"productId":7}`, "7", false},
		{"large integer keeps digits", `{"productId":9007199254740993}`, "9007199254740993", false},
		{"trimmed string", `{"productId":"  7 "}`, "7", false},
		{"null", `{"productId":null}`, "", false},
		{"absent", `{}`, "", false},
		{"object", `{"productId":{"id":7}}`, "", true},
		{"bool", `{"productId":true}`, "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var req ProductViewRequest
			err := json.Unmarshal([]byte(tt.input), &req)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Unmarshal(%s) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if req.ProductID != tt.want {
				t.Errorf("ProductID = %q, want %q", req.ProductID, tt.want)
			}
		})
	}
}

func TestAddToCartRequest_ExactValue(t *testing.T) {
	t.Parallel()

	var req AddToCartRequest
	if err := json.Unmarshal([]byte(`{"productId":7,"value":99.90,"quantity":2}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.Value == nil || req.Value.String() != "99.9" {
		t.Errorf("Value = %v, want 99.9", req.Value)
	}
	if req.Quantity != 2 {
		t.Errorf("Quantity = %d, want 2", req.Quantity)
	}
}
