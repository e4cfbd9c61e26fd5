package kernel

import (
	"errors"
	"testing"

	"muster/pkg/muster"
)

// TestServiceRegistryRegisterAndResolve verifies happy-path registration and lookup.
func TestServiceRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		registerName  string
		registerValue any
		resolveName   string
		wantResolve   any
		wantErr       error
	}{
		{
			name:          "register and resolve success",
			registerName:  "store",
			registerValue: "members.json",
			resolveName:   "store",
			wantResolve:   "members.json",
		},
		{
			name:          "duplicate registration fails",
			registerName:  "directory",
			registerValue: "telegram",
			resolveName:   "directory",
			wantResolve:   "telegram",
			wantErr:       muster.ErrServiceAlreadyRegistered,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := NewServiceRegistry()
			if err := registry.Register(testCase.registerName, testCase.registerValue); err != nil {
				t.Fatalf("first register failed: %v", err)
			}

			if testCase.wantErr != nil {
				err := registry.Register(testCase.registerName, "duplicate")
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("duplicate register error = %v, want %v", err, testCase.wantErr)
				}
			}

			resolved, err := registry.Resolve(testCase.resolveName)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if resolved != testCase.wantResolve {
				t.Fatalf("resolve value = %v, want %v", resolved, testCase.wantResolve)
			}
		})
	}
}

// TestServiceRegistryErrors verifies validation and not-found failure semantics.
func TestServiceRegistryErrors(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()

	if err := registry.Register("", "value"); err == nil {
		t.Fatal("expected empty name register error")
	}
	if err := registry.Register("svc", nil); err == nil {
		t.Fatal("expected nil service register error")
	}
	if _, err := registry.Resolve("missing"); !errors.Is(err, muster.ErrServiceNotFound) {
		t.Fatalf("resolve missing error = %v, want %v", err, muster.ErrServiceNotFound)
	}
}

// TestResolveAsTypeMismatch verifies the generic resolver rejects wrong types.
func TestResolveAsTypeMismatch(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	if err := registry.Register("store", "not-a-dispatcher"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := muster.ResolveAs[muster.SinkDispatcher](registry, "store"); err == nil {
		t.Fatal("expected type assertion failure")
	}
}
