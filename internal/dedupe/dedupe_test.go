package dedupe

import (
	"context"
	"testing"
)

func TestMemoryRegisterFirstOnly(t *testing.T) {
	m := NewMemory()

	first, err := m.Register(context.Background(), "0xAbC")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !first {
		t.Fatal("first registration should report first=true")
	}

	// Same hash in a different case is the same transaction.
	again, err := m.Register(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if again {
		t.Fatal("replayed hash should report first=false")
	}

	other, err := m.Register(context.Background(), "0xdef")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !other {
		t.Fatal("a different hash is a fresh registration")
	}
}
