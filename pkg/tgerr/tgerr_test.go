package tgerr

import (
	"errors"
	"testing"
)

func TestIsMatchesBareCode(t *testing.T) {
	err := New(PoolExhausted, "pool.Alloc")
	if !errors.Is(err, PoolExhausted) {
		t.Fatalf("errors.Is(err, PoolExhausted) = false, want true")
	}
	if errors.Is(err, NicConfigure) {
		t.Fatalf("errors.Is(err, NicConfigure) = true, want false")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("socket refused")
	err := Wrap(NicConfigure, "nic.Configure", cause)
	if !errors.Is(err, NicConfigure) {
		t.Fatalf("wrapped error lost its Code")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost its cause: %v", err)
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(PoolExhausted, "op", nil); err != nil {
		t.Fatalf("Wrap(..., nil) = %v, want nil", err)
	}
}

func TestAsRecoversError(t *testing.T) {
	err := New(TransmitterBusy, "list.Clear")
	var target *Error
	if !errors.As(err, &target) {
		t.Fatalf("errors.As failed to recover *Error")
	}
	if target.Code != TransmitterBusy {
		t.Fatalf("Code = %v, want %v", target.Code, TransmitterBusy)
	}
}
