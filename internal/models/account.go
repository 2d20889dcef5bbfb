package models

// Credentials are the exchange API keys resolved per account right
// before an execution attempt.
type Credentials struct {
	AccountID  string
	APIKey     string
	SecretKey  string
	Passphrase string
	IsTestnet  bool
}
