// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cryptoutil collects the deterministic cryptographic
// primitives the consensus path needs: keccak256, secp256k1 sign and
// recover, an EC-VRF construction, and Merkle trees with
// domain-separated hashing. Nothing here touches wall-clock time or
// OS randomness, since every value it produces feeds a
// consensus-influencing data path.
package cryptoutil

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/luxfi/geth/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of the given byte slices.
func Keccak256(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// --- ECDSA sign / recover (Ethereum-compatible, EIP-155 chain_id) ---

var (
	ErrInvalidSignatureLen = errors.New("cryptoutil: signature must be 65 bytes (r,s,v)")
	ErrInvalidRecoveryID   = errors.New("cryptoutil: recovery id must be 0 or 1")
)

// Sign produces a 65-byte (r || s || v) signature over msgHash. v is
// normalized to {0,1}.
func Sign(msgHash common.Hash, sk *secp256k1.PrivateKey) ([]byte, error) {
	compact := ecdsa.SignCompact(sk, msgHash[:], false)
	if len(compact) != 65 {
		return nil, fmt.Errorf("cryptoutil: unexpected signature length %d", len(compact))
	}
	// SignCompact returns [recid+27 || r || s]; normalize to [r || s || v].
	out := make([]byte, 65)
	copy(out[:64], compact[1:])
	out[64] = compact[0] - 27
	return out, nil
}

// Recover recovers the signing address from a 65-byte signature over
// msgHash.
func Recover(msgHash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, ErrInvalidSignatureLen
	}
	v := sig[64]
	if v > 1 {
		return common.Address{}, ErrInvalidRecoveryID
	}
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact, msgHash[:])
	if err != nil {
		return common.Address{}, fmt.Errorf("cryptoutil: recover: %w", err)
	}
	return PubkeyToAddress(pub), nil
}

// PubkeyToAddress derives the 20-byte address from an uncompressed
// secp256k1 public key the way Ethereum does: the last 20 bytes of
// keccak256(x||y).
func PubkeyToAddress(pub *secp256k1.PublicKey) common.Address {
	x := pub.X().Bytes()
	y := pub.Y().Bytes()
	h := Keccak256(x[:], y[:])
	var addr common.Address
	copy(addr[:], h[12:])
	return addr
}

// --- VRF (secp256k1 EC-VRF, 97-byte proof: 33-byte compressed Gamma
// || 32-byte scalar c || 32-byte scalar s) ---

const VRFProofLen = 97

var (
	ErrInvalidVRFProofLen = errors.New("cryptoutil: vrf proof must be 97 bytes")
	ErrInvalidVRFProof    = errors.New("cryptoutil: vrf proof failed verification")
)

// VRFProve computes alpha's EC-VRF output and proof using sk. The
// hash-to-curve step hashes alpha to a scalar and multiplies the base
// point; this gives a deterministic, publicly-verifiable-exponent
// proof (one proof per (key, alpha) pair) without requiring a full
// hash-to-curve suite.
func VRFProve(alpha []byte, sk *secp256k1.PrivateKey) (output [32]byte, proof [VRFProofLen]byte, err error) {
	k := sk.Key

	hScalar := hashToScalar(alpha)
	var H secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&hScalar, &H)
	H.ToAffine()

	var gamma secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&k, &H, &gamma)
	gamma.ToAffine()

	// Deterministic proof-of-knowledge nonce, derived from sk and
	// alpha only (no wall-clock, no OS randomness).
	skBytes := k.Bytes()
	nonceScalar := hashToScalar(append(append([]byte{}, skBytes[:]...), alpha...))
	var kG, kH secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&nonceScalar, &kG)
	kG.ToAffine()
	secp256k1.ScalarMultNonConst(&nonceScalar, &H, &kH)
	kH.ToAffine()

	pub := sk.PubKey()
	c := challengeScalar(pub, &H, &gamma, &kG, &kH)

	var s secp256k1.ModNScalar
	s.Mul2(&c, &k).Add(&nonceScalar)

	output = beta(&gamma)
	var ptJac secp256k1.JacobianPoint = gamma
	var pt secp256k1.PublicKey
	pt.FromJacobian(&ptJac)
	copy(proof[:33], pt.SerializeCompressed())
	cBytes := c.Bytes()
	sBytes := s.Bytes()
	copy(proof[33:65], cBytes[:])
	copy(proof[65:97], sBytes[:])
	return output, proof, nil
}

// VRFVerify verifies proof over alpha against the registered public
// key, returning the VRF output on success.
func VRFVerify(alpha []byte, proof [VRFProofLen]byte, pub *secp256k1.PublicKey) (output [32]byte, err error) {
	gammaPub, err := secp256k1.ParsePubKey(proof[:33])
	if err != nil {
		return output, fmt.Errorf("%w: %v", ErrInvalidVRFProof, err)
	}
	var c, s secp256k1.ModNScalar
	if overflow := c.SetByteSlice(proof[33:65]); overflow {
		return output, ErrInvalidVRFProof
	}
	if overflow := s.SetByteSlice(proof[65:97]); overflow {
		return output, ErrInvalidVRFProof
	}

	hScalar := hashToScalar(alpha)
	var H secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&hScalar, &H)
	H.ToAffine()

	var gammaJac secp256k1.JacobianPoint
	gammaPub.AsJacobian(&gammaJac)

	var negC secp256k1.ModNScalar
	negC.Set(&c)
	negC.Negate()

	var yJac secp256k1.JacobianPoint
	pub.AsJacobian(&yJac)

	// u = s*G + (-c)*Y
	var sG, negCY, u secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &sG)
	secp256k1.ScalarMultNonConst(&negC, &yJac, &negCY)
	secp256k1.AddNonConst(&sG, &negCY, &u)
	u.ToAffine()

	// v = s*H + (-c)*Gamma
	var sH, negCGamma, v secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&s, &H, &sH)
	secp256k1.ScalarMultNonConst(&negC, &gammaJac, &negCGamma)
	secp256k1.AddNonConst(&sH, &negCGamma, &v)
	v.ToAffine()

	cPrime := challengeScalar(pub, &H, &gammaJac, &u, &v)
	if cPrime != c {
		return output, ErrInvalidVRFProof
	}
	return beta(&gammaJac), nil
}

func beta(gamma *secp256k1.JacobianPoint) [32]byte {
	g := *gamma
	g.ToAffine()
	xb := g.X.Bytes()
	yb := g.Y.Bytes()
	return Keccak256(xb[:], yb[:])
}

func challengeScalar(pub *secp256k1.PublicKey, h, gamma, a, b *secp256k1.JacobianPoint) secp256k1.ModNScalar {
	hAff, gAff, aAff, bAff := *h, *gamma, *a, *b
	hAff.ToAffine()
	gAff.ToAffine()
	aAff.ToAffine()
	bAff.ToAffine()
	px, py := pub.X().Bytes(), pub.Y().Bytes()
	hx, hy := hAff.X.Bytes(), hAff.Y.Bytes()
	gx, gy := gAff.X.Bytes(), gAff.Y.Bytes()
	ax, ay := aAff.X.Bytes(), aAff.Y.Bytes()
	bx, by := bAff.X.Bytes(), bAff.Y.Bytes()
	return hashToScalar(concatAll(px[:], py[:], hx[:], hy[:], gx[:], gy[:], ax[:], ay[:], bx[:], by[:]))
}

func concatAll(parts ...[]byte) []byte {
	out := make([]byte, 0, 32*len(parts))
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func hashToScalar(data []byte) secp256k1.ModNScalar {
	h := Keccak256(data)
	var s secp256k1.ModNScalar
	s.SetByteSlice(h[:])
	return s
}

// ParseValidatorPublicKey rebuilds a *secp256k1.PublicKey from a
// 32-byte registered validator public key: the X coordinate of a
// compressed point, read with the even-Y convention.
func ParseValidatorPublicKey(b [32]byte) (*secp256k1.PublicKey, error) {
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], b[:])
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: invalid validator public key: %w", err)
	}
	return pub, nil
}

// EncodeValidatorPublicKey stores pub's X coordinate for the 32-byte
// Validator.public_key field, flipping pub to its even-Y counterpart
// first if necessary so ParseValidatorPublicKey can round-trip it.
func EncodeValidatorPublicKey(pub *secp256k1.PublicKey) [32]byte {
	var out [32]byte
	x := pub.X().Bytes()
	copy(out[:], x[:])
	return out
}
