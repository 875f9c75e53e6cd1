// Package hashing computes and verifies trade document digests.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest is a lowercase hex SHA-256.
type Digest string

func (d Digest) String() string { return string(d) }

// Verification is the outcome of comparing a stored digest with freshly
// hashed content.
type Verification struct {
	Match          bool   `json:"match"`
	ExpectedDigest Digest `json:"expected_digest"`
	CurrentDigest  Digest `json:"current_digest"`
}

// TamperDetected is the inverse of Match.
func (v Verification) TamperDetected() bool {
	return !v.Match
}

func Hash(content []byte) Digest {
	sum := sha256.Sum256(content)
	return Digest(hex.EncodeToString(sum[:]))
}

func HashString(content string) Digest {
	return Hash([]byte(content))
}

// DocumentContent is the canonical form of a shipment's document bundle.
func DocumentContent(po, invoice, bol string) string {
	var b strings.Builder
	b.Grow(len(po) + len(invoice) + len(bol) + 14)
	b.WriteString("PO:")
	b.WriteString(po)
	b.WriteString("|INV:")
	b.WriteString(invoice)
	b.WriteString("|BOL:")
	b.WriteString(bol)
	return b.String()
}

// DocumentHash hashes the canonical document bundle.
func DocumentHash(po, invoice, bol string) Digest {
	return HashString(DocumentContent(po, invoice, bol))
}

// Verify hashes current and compares it to stored. A stored digest in a
// different letter case still matches.
func Verify(stored Digest, current []byte) Verification {
	return Compare(stored, Hash(current))
}

// Compare checks two already computed digests, as recorded on a ledger entry.
func Compare(stored, current Digest) Verification {
	return Verification{
		Match:          strings.EqualFold(string(stored), string(current)),
		ExpectedDigest: stored,
		CurrentDigest:  current,
	}
}

// VerifyDocuments verifies the document bundle against stored.
func VerifyDocuments(stored Digest, po, invoice, bol string) Verification {
	return Verify(stored, []byte(DocumentContent(po, invoice, bol)))
}
