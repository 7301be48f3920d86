package auth

import "log/slog"

// Secret is a string type that redacts its value when printed, formatted,
// serialized or logged. The raw value is only reachable through
// [Secret.Value], which should be called only where the key material is
// handed to a cryptographic function.
type Secret string

const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder for %#v.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s == "" }

// MarshalText implements [encoding.TextMarshaler], returning the redacted
// placeholder so the secret cannot leak into JSON or YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// LogValue implements [slog.LogValuer].
func (s Secret) LogValue() slog.Value { return slog.StringValue(secretRedacted) }
