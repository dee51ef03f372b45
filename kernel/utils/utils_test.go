package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWrapErrorAddsContext(t *testing.T) {
	base := errors.New("disk full")
	wrapped := WrapError(base, "flush snapshot")
	if !errors.Is(wrapped, base) {
		t.Fatal("expected the wrapped error to still match the original via errors.Is")
	}
	if !strings.Contains(wrapped.Error(), "flush snapshot") {
		t.Fatalf("expected wrapped message to carry the added context, got %q", wrapped.Error())
	}

	if WrapError(nil, "no-op").Error() != "no-op" {
		t.Fatal("expected WrapError(nil, msg) to degrade to a plain message")
	}
}

func TestTimeoutErrorNamesTheOperation(t *testing.T) {
	err := TimeoutError("broadphase update")
	if !strings.Contains(err.Error(), "broadphase update") {
		t.Fatalf("expected the operation name in the error, got %q", err.Error())
	}
}

func TestGracefulShutdownRunsRegisteredFunctionsLIFO(t *testing.T) {
	gs := NewGracefulShutdown(time.Second, nil)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		gs.Register(func() error {
			order = append(order, i)
			return nil
		})
	}

	if err := gs.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	want := []int{2, 1, 0}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("expected shutdown order %v, got %v", want, order)
		}
	}
}

func TestGracefulShutdownTimesOutOnSlowComponent(t *testing.T) {
	gs := NewGracefulShutdown(10*time.Millisecond, nil)
	gs.Register(func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	err := gs.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected a timeout error from a slow shutdown function")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected a timeout error, got %v", err)
	}
}

func TestGenerateIDIsUniqueAndNonEmpty(t *testing.T) {
	a := GenerateID()
	b := GenerateID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty ids")
	}
	if a == b {
		t.Fatal("expected two calls to produce distinct ids")
	}
}
