// Package workunit holds the in-flight mining job assembled from Stratum
// prerequisites, and the byte-level rules for the Zcash block header prefix,
// nonce split, and target byte order.
package workunit

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/silentarmy/stratum-miner/pkg/errors"
)

// HeaderPrefixLen is the length in bytes of the assembled header prefix:
// nVersion(4) || hashPrevBlock(32) || hashMerkleRoot(32) || hashReserved(32) || nTime(4) || nBits(4).
const HeaderPrefixLen = 108

// MaxNonceLeftLen is the largest nonce-left prefix a pool may fix. The solver
// needs 3 bytes to search plus 12 bytes of required zero padding, leaving at
// most 17 bytes (32 - 3 - 12) for the pool.
const MaxNonceLeftLen = 17

// requiredVersion is the only nVersion Zcash v4 headers carry.
const requiredVersion = "04000000"

// zeroHashReserved is the fixed hashReserved field Zcash headers carry.
var zeroHashReserved = strings.Repeat("0", 64)

// WorkUnit is the in-flight mining job: everything the solver needs to
// search for a solution against the pool's current target.
type WorkUnit struct {
	JobID        string
	HeaderPrefix []byte        // HeaderPrefixLen bytes, no nonce, no solution.
	NonceLeft    []byte        // 1..MaxNonceLeftLen bytes, fixed by the pool for the session.
	Target       chainhash.Hash // internal byte order (reversed from the wire).
}

// NewHeaderPrefix validates and assembles the header prefix from the fields
// of a mining.notify notification, per spec §6.
func NewHeaderPrefix(nVersion, hashPrevBlock, hashMerkleRoot, hashReserved, nTime, nBits string) ([]byte, error) {
	if nVersion != requiredVersion {
		return nil, errors.New(errors.ErrorTypeProtocol, "header_prefix", "nVersion must be 04000000").
			WithContext("nVersion", nVersion)
	}
	if hashReserved != zeroHashReserved {
		return nil, errors.New(errors.ErrorTypeProtocol, "header_prefix", "hashReserved must be 64 zero hex digits").
			WithContext("hashReserved", hashReserved)
	}
	if err := checkHexLen("hashPrevBlock", hashPrevBlock, 64); err != nil {
		return nil, err
	}
	if err := checkHexLen("hashMerkleRoot", hashMerkleRoot, 64); err != nil {
		return nil, err
	}
	if err := checkHexLen("nTime", nTime, 8); err != nil {
		return nil, err
	}
	if err := checkHexLen("nBits", nBits, 8); err != nil {
		return nil, err
	}

	prefix, err := hex.DecodeString(nVersion + hashPrevBlock + hashMerkleRoot + hashReserved + nTime + nBits)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "header_prefix", "failed to decode header fields")
	}
	if len(prefix) != HeaderPrefixLen {
		return nil, errors.New(errors.ErrorTypeProtocol, "header_prefix", "assembled prefix has unexpected length").
			WithContext("length", len(prefix))
	}
	return prefix, nil
}

// checkHexLen validates that s is exactly n hex characters.
func checkHexLen(field, s string, n int) error {
	if len(s) != n {
		return errors.New(errors.ErrorTypeProtocol, "header_prefix", field+" has the wrong length").
			WithContext(field, s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProtocol, "header_prefix", field+" is not valid hex")
	}
	return nil
}

// ParseNonceLeft decodes and validates the pool-fixed nonce prefix. A prefix
// longer than MaxNonceLeftLen is a fatal configuration error: the solver has
// no room left to search.
func ParseNonceLeft(nonceLeftHex string) ([]byte, error) {
	b, err := hex.DecodeString(nonceLeftHex)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "nonce_left", "not valid hex")
	}
	if len(b) == 0 {
		return nil, errors.New(errors.ErrorTypeProtocol, "nonce_left", "empty nonce-left prefix")
	}
	if len(b) > MaxNonceLeftLen {
		return nil, errors.Fatal("nonce_left", "pool fixed more than 17 bytes of nonce, solver has no room to search").
			WithContext("length", len(b))
	}
	return b, nil
}

// ReverseTarget decodes a 32-byte big-endian wire target and returns it in
// the little-endian internal order the solver expects, mirroring the
// byte-reversal used throughout the example pack's proof-of-work comparisons.
func ReverseTarget(wireTargetHex string) (chainhash.Hash, error) {
	var h chainhash.Hash

	b, err := hex.DecodeString(wireTargetHex)
	if err != nil {
		return h, errors.Wrap(err, errors.ErrorTypeProtocol, "set_target", "not valid hex")
	}
	if len(b) > len(h) {
		return h, errors.New(errors.ErrorTypeProtocol, "set_target", "target longer than 32 bytes").
			WithContext("length", len(b))
	}

	// Right-align short targets before reversing, same as a big-endian
	// wire value padded on its most-significant side.
	padded := make([]byte, len(h))
	copy(padded[len(h)-len(b):], b)

	for i := range h {
		h[i] = padded[len(h)-1-i]
	}
	return h, nil
}

// TargetHex returns the little-endian internal target as a lowercase hex string.
func (w *WorkUnit) TargetHex() string {
	return hex.EncodeToString(w.Target[:])
}

// Ready reports whether nonce_left is set and header_prefix has the full
// HeaderPrefixLen bytes. It does not look at the target (an all-zero target
// passes); the caller tracks target presence and authorization.
func (w *WorkUnit) Ready() bool {
	return w != nil && len(w.NonceLeft) > 0 && len(w.HeaderPrefix) == HeaderPrefixLen
}
