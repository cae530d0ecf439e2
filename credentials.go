package services

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Auth method names accepted by SessionManager.Authenticate. Unknown
// methods fall back to the password policy.
const (
	MethodPassword = "password"
	MethodWallet   = "wallet"
	MethodToken    = "token"
)

// CredentialValidator is one authentication method's credential check.
// Every built-in implementation is a shape-based placeholder (length or
// prefix rules) meant to be swapped for real verification; the strategy
// split exists precisely so that swap stays local.
type CredentialValidator interface {
	Method() string
	Validate(identifier, credential string) error
}

// PasswordCredential accepts any credential of at least MinLength runes.
// The default policy (and the fallback for unknown methods).
type PasswordCredential struct {
	MinLength int
}

func (PasswordCredential) Method() string { return MethodPassword }

func (p PasswordCredential) Validate(_, credential string) error {
	min := p.MinLength
	if min <= 0 {
		min = 8
	}
	return validation.Validate(credential,
		validation.Required,
		validation.Length(min, 0),
	)
}

// WalletCredential accepts signature-shaped credentials: at least 32 runes.
type WalletCredential struct{}

func (WalletCredential) Method() string { return MethodWallet }

func (WalletCredential) Validate(_, credential string) error {
	return validation.Validate(credential,
		validation.Required,
		validation.Length(32, 0),
	)
}

// TokenCredential accepts credentials carrying the token store's id prefix.
type TokenCredential struct {
	Prefix string
}

func (TokenCredential) Method() string { return MethodToken }

func (t TokenCredential) Validate(_, credential string) error {
	prefix := t.Prefix
	if prefix == "" {
		prefix = TokenIDPrefix
	}
	return validation.Validate(credential,
		validation.Required,
		validation.Match(regexp.MustCompile("^"+regexp.QuoteMeta(prefix))),
	)
}

func defaultCredentialValidators() map[string]CredentialValidator {
	return map[string]CredentialValidator{
		MethodPassword: PasswordCredential{MinLength: 8},
		MethodWallet:   WalletCredential{},
		MethodToken:    TokenCredential{Prefix: TokenIDPrefix},
	}
}
