// Copyright 2015/2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"math/rand"
	"strconv"
	"strings"
)

type randGen struct {
	*rand.Rand
	cat *Catalog
}

func newRand(cat *Catalog, rs rand.Source) *randGen {
	return &randGen{
		Rand: rand.New(rs),
		cat:  cat,
	}
}

func (r *randGen) bin() bool {
	return r.Intn(2) == 0
}

func (r *randGen) oneOf(n int) bool {
	return r.Intn(n) == 0
}

// nOutOf returns true n out of outOf times.
func (r *randGen) nOutOf(n, outOf int) bool {
	if n <= 0 || n >= outOf {
		panic("bad probability")
	}
	v := r.Intn(outOf)
	return v < n
}

func (r *randGen) randRange(begin, end int) int {
	if end <= begin {
		return begin
	}
	return begin + r.Intn(end-begin+1)
}

var (
	// Some potentially interesting integers.
	specialInts = []int64{
		0, 1, 2, 3, 4, 7, 8, 15, 16, 64, 127, 128, 255, 256, 1024, 4096,
		65535, 65536, -1, -2, -128, 2147483647,
	}
	specialUints = []uint64{
		0, 1, 2, 8, 16, 64, 255, 256, 1024, 4096, 65535, 1 << 20,
	}
	specialFloats = []string{"0.0", "1.0", "-1.0", "0.5", "3.14159", "1e10", "1e-10"}
	// Short strings that tend to look like inputs of the target libraries.
	specialStrings = []string{
		``, `a`, `seed`, `{"a":1}`, `[1,2,3]`, `{"key":"value","n":[true,null]}`,
		`SELECT 1;`, `CREATE TABLE t(x);`, `(a+)+b`, `^[a-z]*$`, `\x00\x01`, `tcp port 80`,
	}
)

func (r *randGen) randInt(signed bool) string {
	if r.nOutOf(9, 10) {
		if signed {
			return strconv.FormatInt(specialInts[r.Intn(len(specialInts))], 10)
		}
		return strconv.FormatUint(specialUints[r.Intn(len(specialUints))], 10)
	}
	v := r.Int63n(1 << 16)
	if signed && r.oneOf(4) {
		v = -v
	}
	return strconv.FormatInt(v, 10)
}

// literal generates a C expression for a plain value param.
func (r *randGen) literal(p *Param) string {
	if len(p.Values) != 0 {
		return p.Values[r.Intn(len(p.Values))]
	}
	return r.literalFor(p.CType)
}

func (r *randGen) literalFor(ctype string) string {
	typ := normalizeCType(ctype)
	switch {
	case typ == "bool" || typ == "_Bool" || typ == "cJSON_bool":
		if r.bin() {
			return "1"
		}
		return "0"
	case typ == "double" || typ == "float":
		return specialFloats[r.Intn(len(specialFloats))]
	case typ == "char *" || typ == "const char *" || typ == "unsigned char *" || typ == "const unsigned char *":
		return strconv.Quote(specialStrings[r.Intn(len(specialStrings))])
	case strings.HasSuffix(typ, "*"):
		// Buffers are not modelled, the generated code passes NULL.
		return "NULL"
	case strings.HasPrefix(typ, "unsigned") || strings.HasPrefix(typ, "uint") ||
		typ == "size_t" || typ == "uLong" || typ == "uInt" || typ == "sqlite3_uint64":
		return r.randInt(false)
	default:
		return r.randInt(true)
	}
}

func normalizeCType(ctype string) string {
	typ := strings.Join(strings.Fields(ctype), " ")
	typ = strings.ReplaceAll(typ, " *", "*")
	typ = strings.ReplaceAll(typ, "*", " *")
	return strings.TrimSpace(typ)
}
