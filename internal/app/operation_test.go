package app

import (
	"errors"
	"testing"
	"time"

	"artai-go/internal/testutil"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "UploadImage",
			parameters: "./fox.png",
		},
		{
			name:       "empty parameters",
			operation:  "WhoAmI",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.FixedClock()
			op := NewOperation(tt.operation, tt.parameters, clock, testutil.NewStubIDGenerator())

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.ID != "req-1" {
				t.Errorf("ID = %q, want %q", op.ID, "req-1")
			}
			if !op.Started.Equal(clock.Now()) {
				t.Errorf("Started = %v, want %v", op.Started, clock.Now())
			}
			if op.Status != "success" || op.Failed() {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
		})
	}
}

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("Logout", "", testutil.NewStubClock(time.Unix(0, 0)), testutil.NewStubIDGenerator())

	op.Fail(nil)
	if op.Failed() {
		t.Fatal("Fail(nil) marked the operation failed")
	}

	boom := errors.New("boom")
	op.Fail(boom)
	if !op.Failed() || !errors.Is(op.Err, boom) {
		t.Errorf("after Fail: Status = %q, Err = %v", op.Status, op.Err)
	}
}
