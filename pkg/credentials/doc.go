// Package credentials decides which carrier credentials a tenant's traffic
// runs under.
//
// Resolution order, first match wins:
//
//  1. FORCE_SHARED_CREDENTIALS skips straight to the shared platform account.
//  2. A self-billed tenant uses its personal set (ModePersonal).
//  3. Any other tenant with its own complete set uses it under platform
//     billing (ModeIsolatedPlatform).
//  4. Otherwise the shared platform account (ModeSharedPlatform), preferring
//     the classic account sid and auth token over an API key pair.
//
// Malformed material returns an error joined with ErrCredentialInvalid instead
// of falling back, so traffic never runs under the wrong billing identity.
// Identifiers are logged masked and secrets are never logged.
package credentials
