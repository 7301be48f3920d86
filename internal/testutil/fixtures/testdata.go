// Package fixtures holds the shared identities and configuration snippets
// used across the gateway test suites.
package fixtures

// Demo account served by the static directory.
const (
	DemoEmail    = "test@test.com"
	DemoPassword = "testpassword"
)

// A second account for tests that need two distinct users.
const (
	AltEmail    = "alice@example.com"
	AltPassword = "correct horse battery staple"
)

// SigningKey is a 32-byte HS256 key. It must never be used outside tests.
const SigningKey = "authgate-test-signing-key-000001"

// Configuration snippets for loader tests.
const (
	TestEnvPrefix = "AUTHGATE_TEST"

	TestConfigYAML = `addr: ":5000"
directory: static
token:
  token_ttl: 30m
  issuer: authgate-test
`

	TestConfigJSON = `{
  "addr": ":5000",
  "directory": "static",
  "token": {"issuer": "authgate-test"}
}`
)
