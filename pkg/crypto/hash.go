package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sha256Hex computes the SHA256 hash of an input string and returns it as a hex-encoded string.
func Sha256Hex(input string) string {
	hasher := sha256.New()
	// Write operation on hash.Hash never returns an error.
	_, _ = hasher.Write([]byte(input)) //nolint:errcheck
	return hex.EncodeToString(hasher.Sum(nil))
}

// Md5Hex computes the MD5 hash of an input string and returns it as a hex-encoded string.
// Used for cache field fingerprints and tenant request signatures, not for password storage.
func Md5Hex(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// DeviceFingerprint derives a stable device identifier from the connection's
// user-agent string and source address. Collisions alias sessions but are not
// a security boundary on their own.
func DeviceFingerprint(userAgent, clientIP string) string {
	return Sha256Hex(userAgent + ":" + clientIP)
}

// TenantSignature computes the expected request signature for a tenant app:
// the hex MD5 of the app id concatenated with its shared secret.
func TenantSignature(appID, appSecret string) string {
	return Md5Hex(appID + appSecret)
}

// VerifyTenantSignature compares a caller-supplied signature against the
// expected one in constant time.
func VerifyTenantSignature(appID, appSecret, signature string) bool {
	expected := TenantSignature(appID, appSecret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
