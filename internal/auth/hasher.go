/*-------------------------------------------------------------------------
 *
 * hasher.go
 *    Cryptographic hashing utilities for gateway credentials
 *
 * Provides bcrypt-based hashing for the approver password and
 * constant-time comparison for the shared agent key.
 *
 * IDENTIFICATION
 *    internal/auth/hasher.go
 *
 *-------------------------------------------------------------------------
 */

package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

/* HashPassword hashes the approver password using bcrypt */
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

/* VerifyPassword verifies the approver password against its stored hash */
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

/* VerifyAgentKey compares the presented agent key against the configured
 * one in constant time */
func VerifyAgentKey(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

/* KeyPrefix returns the first 8 characters of a key for log identification */
func KeyPrefix(key string) string {
	if len(key) < 8 {
		return key
	}
	return key[:8]
}
