// Package id generates identifiers for user-owned records.
//
// Record ids are random UUIDv4 bytes in lowercase unpadded base32, 26
// characters from [a-z2-7]. Squad invite codes are the upper-cased prefix of
// a record id.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// InviteCodeLength is the number of id characters kept for a squad invite.
const InviteCodeLength = 8

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a new random record id.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// InviteCode derives a squad invite code from a record id.
func InviteCode(recordID string) string {
	code := strings.TrimSpace(recordID)
	if len(code) > InviteCodeLength {
		code = code[:InviteCodeLength]
	}
	return strings.ToUpper(code)
}

// NormalizeInviteCode canonicalizes a code typed by a user.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
