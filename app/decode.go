package app

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
)

// Contract outputs arrive as the Go types the ABI decoder produces:
// *big.Int for uint128/uint256 and fixed-width integers for smaller types.

func output(out []any, i int, method string) (any, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("%s: expected at least %d outputs, got %d", method, i+1, len(out))
	}
	return out[i], nil
}

func bigOutput(out []any, i int, method string) (*big.Int, error) {
	v, err := output(out, i, method)
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("%s: nil integer output", method)
		}
		return new(big.Int).Set(n), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	default:
		return nil, fmt.Errorf("%s: output %d is %T, not an integer", method, i, v)
	}
}

func boolOutput(out []any, i int, method string) (bool, error) {
	v, err := output(out, i, method)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: output %d is %T, not a bool", method, i, v)
	}
	return b, nil
}

func addressOutput(out []any, i int, method string) (common.Address, error) {
	v, err := output(out, i, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: output %d is %T, not an address", method, i, v)
	}
	return addr, nil
}

func uint16Output(out []any, i int, method string) (uint16, error) {
	n, err := bigOutput(out, i, method)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() || n.Uint64() > 0xffff {
		return 0, fmt.Errorf("%s: output %d overflows uint16", method, i)
	}
	return uint16(n.Uint64()), nil
}

func uint32Output(out []any, i int, method string) (uint32, error) {
	n, err := bigOutput(out, i, method)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() || n.Uint64() > 0xffffffff {
		return 0, fmt.Errorf("%s: output %d overflows uint32", method, i)
	}
	return uint32(n.Uint64()), nil
}

// pointOutput reads the X and Y fields of a decoded (uint256,uint256) tuple.
func pointOutput(out []any, i int, method string) (x, y *big.Int, err error) {
	v, err := output(out, i, method)
	if err != nil {
		return nil, nil, err
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("%s: output %d is %T, not a tuple", method, i, v)
	}
	field := func(name string) *big.Int {
		f := rv.FieldByName(name)
		if !f.IsValid() {
			return nil
		}
		n, _ := f.Interface().(*big.Int)
		return n
	}
	return field("X"), field("Y"), nil
}

// uint32Arg converts n for a uint32 contract parameter.
func uint32Arg(n *big.Int) (uint32, bool) {
	if n == nil || n.Sign() < 0 || !n.IsUint64() || n.Uint64() > 0xffffffff {
		return 0, false
	}
	return uint32(n.Uint64()), true
}
