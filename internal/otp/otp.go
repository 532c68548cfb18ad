/*-------------------------------------------------------------------------
 *
 * otp.go
 *    One-time code issuance and verification
 *
 * Codes are drawn uniformly from an alphanumeric alphabet using a
 * cryptographically secure random source; a predictable code would let
 * an attacker skip human approval. Stored hashes use bcrypt so an
 * exfiltrated store resists offline brute force, and verification goes
 * through bcrypt's own comparer, never a raw string compare.
 *
 * IDENTIFICATION
 *    internal/otp/otp.go
 *
 *-------------------------------------------------------------------------
 */

package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

/* DefaultLength is the standard code length issued on approval */
const DefaultLength = 6

const bcryptCost = 10

/* Generate produces a random code of the given length */
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	code := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate one-time code: %w", err)
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

/* Hash produces a salted bcrypt hash of the code */
func Hash(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash one-time code: %w", err)
	}
	return string(hash), nil
}

/* Verify checks a code against its stored hash */
func Verify(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
