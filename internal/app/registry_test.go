package app

import (
	"errors"
	"testing"

	"github.com/hylla/kollage/internal/domain"
)

func TestRegistryClaimAndRelease(t *testing.T) {
	r := NewRegistry()
	if err := r.Claim("board_a"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if err := r.Claim("board_a"); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := r.Claim("  "); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	r.Release("board_a")
	if r.Claimed("board_a") {
		t.Fatal("expected released id to be free")
	}
}

func TestRegistryAllocateSkipsTakenIDs(t *testing.T) {
	r := NewRegistry()
	if err := r.Claim("board_1"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	seq := []string{"1", "", "2"}
	next := 0
	gen := func() string {
		v := seq[next%len(seq)]
		next++
		return v
	}
	id, err := r.Allocate(BoardIDPrefix, gen)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if id != "board_2" {
		t.Fatalf("expected board_2, got %q", id)
	}

	if _, err := r.Allocate(BoardIDPrefix, func() string { return "1" }); !errors.Is(err, ErrIDExhausted) {
		t.Fatalf("expected ErrIDExhausted, got %v", err)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	if err := a.Claim("board_x"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if err := b.Claim("board_x"); err != nil {
		t.Fatalf("expected separate registries, got %v", err)
	}
}
