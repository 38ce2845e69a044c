// Package fingerprint derives stable identities for findings so that
// repeated runs recognize "the same issue" even when unrelated edits
// shift line numbers or the model rewords volatile parts of a message.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strings"

	"github.com/codequarry/quarry/internal/types"
)

// Volatile-token patterns stripped from messages before hashing.
// Line numbers, byte offsets, timestamps, and hex addresses all drift
// between runs without the underlying issue changing.
var (
	lineRefRegex   = regexp.MustCompile(`(?i)\b(?:line|row|col(?:umn)?|offset)\s*[:#]?\s*\d+`)
	// (?i) because NormalizeMessage lowercases before stripping, which
	// turns the ISO-8601 "T" separator and "Z" suffix lowercase
	timestampRegex = regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2})?(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?\b`)
	hexAddrRegex   = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	bareNumRegex   = regexp.MustCompile(`\b\d+\b`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// NormalizePath canonicalizes a source path to repository-relative form
// with forward-slash separators. Windows separators and leading "./"
// are removed so the same file hashes identically on every platform.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}

// NormalizeMessage strips volatile tokens from a finding message and
// collapses it to a lowercase, single-spaced form. Two messages that
// differ only in line references, timestamps, addresses, or bare
// numbers normalize identically. The exact stripping rules are the
// stability tolerance knob: widen them and more drift maps to the same
// fingerprint, narrow them and edited issues resurface as new.
func NormalizeMessage(msg string) string {
	msg = strings.ToLower(msg)
	msg = lineRefRegex.ReplaceAllString(msg, "")
	msg = timestampRegex.ReplaceAllString(msg, "")
	msg = hexAddrRegex.ReplaceAllString(msg, "")
	msg = bareNumRegex.ReplaceAllString(msg, "#")
	msg = whitespaceRegex.ReplaceAllString(msg, " ")
	return strings.TrimSpace(msg)
}

// Fingerprint computes the stable identity for a finding. Pure and
// deterministic: the same finding content always produces the same
// fingerprint, across calls and across process restarts. The line
// number is intentionally excluded so minor shifts don't break
// identity. sha256 makes accidental collision between genuinely
// different issues negligible.
func Fingerprint(f types.Finding) types.Fingerprint {
	var b strings.Builder
	b.WriteString(NormalizePath(f.SourcePath))
	b.WriteByte(0)
	b.WriteString(strings.TrimSpace(f.Rule))
	b.WriteByte(0)
	b.WriteString(NormalizeMessage(f.Message))

	sum := sha256.Sum256([]byte(b.String()))
	return types.Fingerprint(hex.EncodeToString(sum[:]))
}
