package bridge

import (
	"encoding/json"
	"testing"
)

func TestRequest_IsNotification(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  bool
	}{
		{"absent id", `{"jsonrpc":"2.0","method":"ping"}`, true},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"ping"}`, true},
		{"numeric id", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, false},
		{"zero id", `{"jsonrpc":"2.0","id":0,"method":"ping"}`, false},
		{"string id", `{"jsonrpc":"2.0","id":"a","method":"ping"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			if err := json.Unmarshal([]byte(tt.frame), &req); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if got := req.IsNotification(); got != tt.want {
				t.Errorf("IsNotification() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewError_NullIDForUnparseableRequests(t *testing.T) {
	resp := newError(nil, CodeParseError, "parse error")

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v, present := decoded["id"]; !present || v != nil {
		t.Errorf("parse errors must carry id:null, got %v", decoded)
	}
}

func TestResponse_ErrorOmitsResult(t *testing.T) {
	resp := newError(json.RawMessage("1"), CodeMethodNotFound, "nope")
	data, _ := json.Marshal(resp)

	var decoded map[string]any
	_ = json.Unmarshal(data, &decoded)
	if _, present := decoded["result"]; present {
		t.Errorf("error responses must omit result, got %s", data)
	}

	errObj := decoded["error"].(map[string]any)
	if errObj["code"] != float64(CodeMethodNotFound) {
		t.Errorf("expected code %d, got %v", CodeMethodNotFound, errObj["code"])
	}
}
