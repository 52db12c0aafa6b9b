package chain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Filter narrows a program account scan. Exactly one of the fields is set.
type Filter struct {
	DataSize uint64
	Offset   uint64
	Bytes    []byte
}

// DataSize selects accounts whose data is exactly n bytes.
func DataSize(n int) Filter {
	return Filter{DataSize: uint64(n)}
}

// Memcmp selects accounts whose bytes at offset equal pk.
func Memcmp(offset uint64, pk solana.PublicKey) Filter {
	return Filter{Offset: offset, Bytes: append([]byte(nil), pk[:]...)}
}

// MemcmpBytes is Memcmp for arbitrary bytes, e.g. an account discriminator
// at offset 0.
func MemcmpBytes(offset uint64, b []byte) Filter {
	return Filter{Offset: offset, Bytes: append([]byte(nil), b...)}
}

func (f Filter) String() string {
	if f.Bytes != nil {
		return fmt.Sprintf("memcmp(%d,%s)", f.Offset, solana.Base58(f.Bytes))
	}
	return fmt.Sprintf("dataSize(%d)", f.DataSize)
}

func (f Filter) rpcFilter() rpc.RPCFilter {
	if f.Bytes != nil {
		return rpc.RPCFilter{Memcmp: &rpc.RPCFilterMemcmp{Offset: f.Offset, Bytes: solana.Base58(f.Bytes)}}
	}
	return rpc.RPCFilter{DataSize: f.DataSize}
}

// Match applies the filter to raw account data. Used by in-memory readers.
func (f Filter) Match(data []byte) bool {
	if f.Bytes == nil {
		return uint64(len(data)) == f.DataSize
	}
	end := f.Offset + uint64(len(f.Bytes))
	if end > uint64(len(data)) {
		return false
	}
	return string(data[f.Offset:end]) == string(f.Bytes)
}
