package encryptor_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/artpar/tacoscan/domain/encryptor"
	"github.com/artpar/tacoscan/domain/subscription"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
	addrC = "0x3333333333333333333333333333333333333333"
)

func TestParseList(t *testing.T) {
	got, err := encryptor.ParseList(" " + addrA + ", " + addrB + ",," + addrA + " ,")
	if err != nil {
		t.Fatalf("ParseList() error: %v", err)
	}
	want := []common.Address{common.HexToAddress(addrA), common.HexToAddress(addrB)}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i].Hex(), want[i].Hex())
		}
	}
}

func TestParseList_CaseInsensitiveDuplicates(t *testing.T) {
	mixed := "0xAbCdEf0123456789abcdef0123456789ABCDEF01"
	lower := "0xabcdef0123456789abcdef0123456789abcdef01"

	got, err := encryptor.ParseList(mixed + "," + lower)
	if err != nil {
		t.Fatalf("ParseList() error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestParseList_Invalid(t *testing.T) {
	tests := []string{"", " , ,", "not-an-address", addrA + ",0x123"}
	for _, raw := range tests {
		if _, err := encryptor.ParseList(raw); !errors.Is(err, subscription.ErrInvalidInput) {
			t.Errorf("ParseList(%q) error = %v, want ErrInvalidInput", raw, err)
		}
	}
}

func TestSelectForCheck(t *testing.T) {
	addrs := []common.Address{common.HexToAddress(addrA), common.HexToAddress(addrB), common.HexToAddress(addrC)}

	rep := encryptor.SelectForCheck(addrs, encryptor.CheckRepresentative)
	if len(rep) != 1 || rep[0] != addrs[0] {
		t.Errorf("representative = %v", rep)
	}

	all := encryptor.SelectForCheck(addrs, encryptor.CheckAll)
	if len(all) != 3 {
		t.Errorf("all = %d addresses, want 3", len(all))
	}

	rep = append(rep, addrs[2])
	if addrs[1] != common.HexToAddress(addrB) {
		t.Error("appending to the selection must not clobber the input")
	}

	if got := encryptor.SelectForCheck(nil, encryptor.CheckAll); got != nil {
		t.Errorf("empty input = %v", got)
	}
}

func TestCheckMode_Valid(t *testing.T) {
	if !encryptor.CheckRepresentative.Valid() || !encryptor.CheckAll.Valid() {
		t.Error("known modes should be valid")
	}
	if encryptor.CheckMode("some").Valid() {
		t.Error("unknown mode should be invalid")
	}
}

func TestSet_Merge(t *testing.T) {
	a := common.HexToAddress(addrA)
	b := common.HexToAddress(addrB)

	empty := encryptor.NewSet()
	withA := empty.Merge(encryptor.Result{Address: a, Authorized: true})

	if empty.Contains(a) {
		t.Error("merge must not modify the receiver")
	}
	if !withA.Contains(a) || withA.Len() != 1 {
		t.Error("authorized result should add the address")
	}

	same := withA.Merge(encryptor.Result{Address: a, Authorized: true})
	if same.Len() != 1 {
		t.Error("re-adding should be a no-op")
	}

	withB := withA.Merge(encryptor.Result{Address: b, Authorized: true})
	removedA := withB.Merge(encryptor.Result{Address: a, Authorized: false})
	if removedA.Contains(a) || !removedA.Contains(b) {
		t.Errorf("unexpected members %v", removedA.List())
	}
	if !withB.Contains(a) {
		t.Error("removal must not modify the previous set")
	}

	untouched := removedA.Merge(encryptor.Result{Address: common.HexToAddress(addrC), Authorized: false})
	if untouched.Len() != 1 {
		t.Error("removing a non-member should be a no-op")
	}
}

func TestSet_ListSorted(t *testing.T) {
	s := encryptor.NewSet(common.HexToAddress(addrC), common.HexToAddress(addrA), common.HexToAddress(addrB))
	list := s.List()
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].Hex() != common.HexToAddress(addrA).Hex() || list[2].Hex() != common.HexToAddress(addrC).Hex() {
		t.Errorf("list not sorted: %v", list)
	}
}
