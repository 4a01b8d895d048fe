package trust

import (
	"errors"
	"testing"
)

type fakeResolver struct {
	self    Identity
	selfErr error
	peers   map[int]Identity
}

func (f *fakeResolver) Self() (Identity, error) { return f.self, f.selfErr }

func (f *fakeResolver) ForPID(pid int) (Identity, error) {
	id, ok := f.peers[pid]
	if !ok {
		return Identity{}, errors.New("no such process")
	}
	return id, nil
}

var (
	teamChain  = Identity{Chain: []string{"aa11", "bb22", "cc33"}}
	otherChain = Identity{Chain: []string{"ff99", "bb22", "cc33"}}
)

func TestGateVerify(t *testing.T) {
	r := &fakeResolver{
		self: teamChain,
		peers: map[int]Identity{
			100: {Chain: []string{"AA11", "BB22", "CC33"}},
			101: otherChain,
			102: {Chain: []string{"aa11", "bb22"}},
			103: {},
		},
	}
	g := NewGate(r)

	tests := []struct {
		name    string
		pid     int
		wantErr bool
	}{
		{"identical chain", 100, false},
		{"different leaf", 101, true},
		{"truncated chain", 102, true},
		{"unsigned caller", 103, true},
		{"unresolvable pid", 999, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Verify(tt.pid)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify(%d) error = %v, wantErr %v", tt.pid, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Verify(%d) error = %v, want ErrUnauthorized", tt.pid, err)
			}
		})
	}
}

func TestGateRejectsWhenSelfUnresolvable(t *testing.T) {
	r := &fakeResolver{
		selfErr: errors.New("not signed"),
		peers:   map[int]Identity{100: teamChain},
	}

	if err := NewGate(r).Verify(100); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestIdentityEqual(t *testing.T) {
	if (Identity{}).Equal(Identity{}) {
		t.Error("empty identities must not match")
	}
	if !teamChain.Equal(teamChain) {
		t.Error("identity must match itself")
	}
	if teamChain.Equal(otherChain) {
		t.Error("different chains must not match")
	}
}
