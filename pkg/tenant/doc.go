// Package tenant defines the canonical billable account record and its
// persistence.
//
// A Tenant carries its billing mode, carrier credential sets, payment
// processor linkage, the continuous usage balance (USD, decimal), the AI
// accrual fields (integer cents) and lifetime analytics counters.
//
// # Atomicity
//
// Store exposes increments instead of setters for every money and counter
// field. Two workers metering the same tenant at the same moment both land
// their decrement; nothing is lost to a read-modify-write race. Charge
// attempts are serialized with short leases (TryLock / Unlock) that expire
// on their own if a worker dies while holding one.
//
// # Legacy documents
//
// MongoStore reads historical field spellings (flat carrier keys, several
// registration-status fields, a double-typed balance) and maps them onto the
// canonical struct in one place, the document mapper. Writes always use the
// canonical fields. Business code never sees the legacy names.
//
// MemoryStore implements the same contract for tests and local runs.
package tenant
