package vm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// MustParseABI parses a JSON ABI definition. It panics on malformed input and
// is meant for package-level vars.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("vm: bad abi: %v", err))
	}
	return parsed
}

// MustType builds an ABI type from its canonical name, e.g. "address[7]".
func MustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("vm: bad abi type %q: %v", t, err))
	}
	return typ
}

// MustArguments builds an argument list from canonical type names.
func MustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: MustType(t)}
	}
	return args
}

// Selector returns the 4-byte function selector of a canonical signature.
func Selector(sig string) [4]byte {
	var s [4]byte
	copy(s[:], crypto.Keccak256([]byte(sig))[:4])
	return s
}

// Decode resolves input against a parsed ABI and unpacks its arguments.
func Decode(a abi.ABI, input []byte) (*abi.Method, []interface{}, error) {
	if len(input) < 4 {
		return nil, nil, fmt.Errorf("%w: short input", ErrUnknownMethod)
	}
	method, err := a.MethodById(input[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %x", ErrUnknownMethod, input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", method.Name, err)
	}
	return method, args, nil
}

// DeriveAddress hashes parts with legacy Keccak-256 and keeps the low 20 bytes.
func DeriveAddress(parts ...[]byte) common.Address {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return common.BytesToAddress(h.Sum(nil)[12:])
}
