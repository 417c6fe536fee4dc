package types

// Version is the canonical agent release version, surfaced in health
// diagnostics and the coordinator poll query string.
const Version = "0.6.1"
