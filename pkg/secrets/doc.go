// Package secrets encrypts tenant carrier credential secrets at rest.
//
// A Box holds the 32-byte application key (CREDENTIALS_APP_KEY, base64).
// Per-tenant keys are derived with HKDF-SHA256 using the tenant id as salt;
// the tenant id is also bound as GCM additional data. The credential
// resolver calls Decrypt for credential sets flagged as encrypted.
//
//	box, err := secrets.NewBoxFromBase64(os.Getenv("CREDENTIALS_APP_KEY"))
//	enc, err := box.Encrypt(tenantID, apiKeySecret)
//	plain, err := box.Decrypt(tenantID, enc)
package secrets
