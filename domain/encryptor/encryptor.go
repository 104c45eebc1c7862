// Package encryptor provides pure functions for encryptor allow-list input
// handling and authorization bookkeeping.
package encryptor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/artpar/tacoscan/domain/subscription"
)

// CheckMode controls how many addresses of a submission are checked.
type CheckMode string

const (
	// CheckRepresentative checks only the first unique address per submission.
	// This bounds ledger reads but can misreport the other addresses.
	CheckRepresentative CheckMode = "representative"
	// CheckAll checks every unique address of a submission.
	CheckAll CheckMode = "all"
)

// Valid reports whether m is a known check mode.
func (m CheckMode) Valid() bool {
	return m == CheckRepresentative || m == CheckAll
}

// ParseList splits a comma-separated address list, trims entries, drops empty
// ones and removes duplicates while keeping first-seen order. Addresses are
// compared case-insensitively.
// This is a PURE function.
func ParseList(raw string) ([]common.Address, error) {
	var out []common.Address
	seen := make(map[common.Address]bool)

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			return nil, fmt.Errorf("%w: %q is not an address", subscription.ErrInvalidInput, part)
		}
		addr := common.HexToAddress(part)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: please enter encryptor addresses", subscription.ErrInvalidInput)
	}
	return out, nil
}

// SelectForCheck returns the addresses that should be checked for a submission.
func SelectForCheck(addrs []common.Address, mode CheckMode) []common.Address {
	if len(addrs) == 0 {
		return nil
	}
	if mode == CheckAll {
		return append([]common.Address(nil), addrs...)
	}
	return addrs[:1:1]
}

// Result is the outcome of one authorization check.
type Result struct {
	Address    common.Address
	Authorized bool
}

// Set is an immutable set of addresses known to be authorized.
// Merge returns a new set; the receiver is never modified.
type Set struct {
	members map[common.Address]struct{}
}

// NewSet builds a set from the given addresses.
func NewSet(addrs ...common.Address) Set {
	members := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		members[a] = struct{}{}
	}
	return Set{members: members}
}

// Merge applies a check result: authorized adds the address, unauthorized removes it.
func (s Set) Merge(r Result) Set {
	_, present := s.members[r.Address]
	if present == r.Authorized {
		return s
	}

	members := make(map[common.Address]struct{}, len(s.members)+1)
	for a := range s.members {
		members[a] = struct{}{}
	}
	if r.Authorized {
		members[r.Address] = struct{}{}
	} else {
		delete(members, r.Address)
	}
	return Set{members: members}
}

// Contains reports whether addr is in the set.
func (s Set) Contains(addr common.Address) bool {
	_, ok := s.members[addr]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.members)
}

// List returns the members sorted by hex form.
func (s Set) List() []common.Address {
	out := make([]common.Address, 0, len(s.members))
	for a := range s.members {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out
}
