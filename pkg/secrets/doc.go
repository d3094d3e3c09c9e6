// Package secrets seals per-merchant credentials at rest.
//
// A Sealer holds one 32-byte application key. For every value it derives a
// merchant-scoped key with HKDF-SHA-256 (application key as secret, the
// merchant id as salt) and encrypts with AES-256-GCM. Sealed values are
// self-describing strings of the form "sealed:v1:<base64(nonce|ciphertext)>",
// so they fit the existing text columns and plaintext rows written before
// sealing was enabled keep working.
//
//	sealer, err := secrets.NewFromBase64(cfg.CredentialsKey)
//	stored, err := sealer.Seal(merchantID[:], "sk_live_...")
//	plain, err := sealer.Open(merchantID[:], stored)
package secrets
