package storage

// Key schema for Pebble storage
//
//   s:<address><slot>  → ledger value (state.Write keys, prefixed)

const prefixState = "s:"

func stateKey(key []byte) []byte {
	k := make([]byte, 0, len(prefixState)+len(key))
	k = append(k, prefixState...)
	return append(k, key...)
}
