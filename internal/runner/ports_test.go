package runner

import (
	"errors"
	"testing"
)

func TestPortAllocatorSequential(t *testing.T) {
	a := NewPortAllocator(8080, 8082)

	for _, want := range []int{8080, 8081, 8082} {
		got, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != want {
			t.Errorf("Allocate = %d, want %d", got, want)
		}
	}

	// Диапазон исчерпан
	if _, err := a.Allocate(); !errors.Is(err, ErrNoFreePorts) {
		t.Errorf("err = %v, want ErrNoFreePorts", err)
	}
}

func TestPortAllocatorReserve(t *testing.T) {
	a := NewPortAllocator(8080, 8085)

	if err := a.Reserve(8081); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := a.Reserve(8081); !errors.Is(err, ErrPortTaken) {
		t.Errorf("second Reserve err = %v, want ErrPortTaken", err)
	}

	// Аллокатор перешагивает зарезервированный порт
	first, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first != 8080 {
		t.Errorf("Allocate = %d, want 8080", first)
	}
	second, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != 8082 {
		t.Errorf("Allocate = %d, want 8082", second)
	}
}

func TestPortAllocatorRelease(t *testing.T) {
	a := NewPortAllocator(9000, 9000)

	port, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := a.Allocate(); !errors.Is(err, ErrNoFreePorts) {
		t.Fatalf("err = %v, want ErrNoFreePorts", err)
	}

	a.Release(port)
	if err := a.Reserve(port); err != nil {
		t.Errorf("Reserve after Release: %v", err)
	}
}

func TestPortAllocatorReusesReleasedPorts(t *testing.T) {
	a := NewPortAllocator(8080, 8081)

	// Длинная сессия: привязок больше, чем портов в диапазоне
	for i := 0; i < 10; i++ {
		port, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		if port != 8080 {
			t.Errorf("Allocate %d = %d, want released 8080", i, port)
		}
		a.Release(port)
	}
}
