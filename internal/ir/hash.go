package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Domain separation prefixes for structural hashes.
// Changing either invalidates every array_equals / sub_doc_equals entry on disk.
const (
	domainArray  = "cqlbridge/array/v1"
	domainObject = "cqlbridge/object/v1"
)

// hashWithDomain computes SHA-256(domain + 0x00 + data), hex encoded.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the typed representation of v stored in the generic index
// columns of a collection table (array_contains, array_equals, sub_doc_equals).
//
//	String  -> "S" + text
//	Number  -> "N" + reduced decimal
//	Bool    -> "B1" / "B0"
//	Null    -> "Z"
//	Date    -> "T" + millis
//	Array   -> "A" + sha256 of canonical JSON
//	Object  -> "O" + sha256 of canonical JSON
func Hash(v Value) (string, error) {
	switch val := v.(type) {
	case nil, Null:
		return "Z", nil
	case String:
		return "S" + NormalizePath(string(val)), nil
	case Number:
		return "N" + val.String(), nil
	case Bool:
		if val {
			return "B1", nil
		}
		return "B0", nil
	case Date:
		return "T" + strconv.FormatInt(int64(val), 10), nil
	case Array:
		data, err := MarshalCanonical(val)
		if err != nil {
			return "", err
		}
		return "A" + hashWithDomain(domainArray, data), nil
	case Object:
		data, err := MarshalCanonical(val)
		if err != nil {
			return "", err
		}
		return "O" + hashWithDomain(domainObject, data), nil
	default:
		return "", fmt.Errorf("unsupported type for hashing: %T", v)
	}
}

// PathHash joins a document path and a value hash the way array_contains
// entries are stored: "<path> <hash>".
func PathHash(path string, v Value) (string, error) {
	h, err := Hash(v)
	if err != nil {
		return "", err
	}
	return NormalizePath(path) + " " + h, nil
}
