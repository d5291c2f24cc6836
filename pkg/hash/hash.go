// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hash computes the signatures that key the corpus and the visited counters.
package hash

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
)

type Sig [sha1.Size]byte

func sum(h hash.Hash) Sig {
	var sig Sig
	h.Sum(sig[:0])
	return sig
}

// Hash hashes the concatenation of pieces, e.g. a serialized sequence.
func Hash(pieces ...[]byte) Sig {
	h := sha1.New()
	for _, data := range pieces {
		h.Write(data)
	}
	return sum(h)
}

func String(pieces ...[]byte) string {
	return Hash(pieces...).String()
}

// Names hashes an ordered list of names, e.g. the function combination of a sequence.
// Names are NUL-terminated, so [ab, c] and [a, bc] differ.
func Names(names []string) Sig {
	h := sha1.New()
	for _, name := range names {
		h.Write(append([]byte(name), 0))
	}
	return sum(h)
}

func (sig Sig) String() string {
	return hex.EncodeToString(sig[:])
}

// Seed derives a random seed from the first 8 bytes of the signature.
func (sig Sig) Seed() int64 {
	return int64(binary.LittleEndian.Uint64(sig[:8]))
}

// FromString parses the hex form produced by Sig.String.
func FromString(str string) (Sig, error) {
	var sig Sig
	if len(str) != 2*len(sig) {
		return sig, fmt.Errorf("bad signature %q: want %v hex digits", str, 2*len(sig))
	}
	if _, err := hex.Decode(sig[:], []byte(str)); err != nil {
		return sig, fmt.Errorf("bad signature %q: %w", str, err)
	}
	return sig, nil
}
