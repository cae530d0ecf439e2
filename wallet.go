package services

import (
	"context"
	"fmt"
	"sort"
)

// walletChallenge is the message signed during the wallet login flow.
const walletChallenge = "pewpi-login"

// WalletAccount is the identity a wallet provider hands back on connect.
type WalletAccount struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// WalletProvider is the external collaborator behind wallet logins. The
// session layer treats it as an opaque identity and signature source.
type WalletProvider interface {
	Connect(ctx context.Context, kind string) (*WalletAccount, error)
	SignMessage(ctx context.Context, message string) (string, error)
}

// Wallet kinds the mock provider recognizes.
const (
	WalletMetaMask      = "metamask"
	WalletPhantom       = "phantom"
	WalletWalletConnect = "walletconnect"
)

// MockWalletProvider fabricates addresses and signatures with the injected
// generator. Nothing is verified anywhere; it exists so the wallet auth
// path can run without a real provider.
type MockWalletProvider struct {
	gen       ValueGenerator
	kinds     map[string]struct{}
	connected *WalletAccount
}

// NewMockWalletProvider builds a mock supporting the default wallet kinds.
// A nil generator falls back to CryptoGenerator.
func NewMockWalletProvider(gen ValueGenerator) *MockWalletProvider {
	if gen == nil {
		gen = CryptoGenerator{}
	}
	return &MockWalletProvider{
		gen: gen,
		kinds: map[string]struct{}{
			WalletMetaMask:      {},
			WalletPhantom:       {},
			WalletWalletConnect: {},
		},
	}
}

// Connect fabricates an account for a supported wallet kind.
func (p *MockWalletProvider) Connect(_ context.Context, kind string) (*WalletAccount, error) {
	if _, ok := p.kinds[kind]; !ok {
		return nil, fmt.Errorf("unsupported wallet kind %q (supported: %v)", kind, p.supported())
	}

	// 20 bytes, same shape as an EVM address.
	suffix, err := p.gen.Generate(20)
	if err != nil {
		return nil, err
	}

	p.connected = &WalletAccount{
		Address: "0x" + suffix,
		Balance: 0,
	}
	return p.connected, nil
}

// SignMessage fabricates a 65-byte signature-shaped string. Connect must
// have succeeded first.
func (p *MockWalletProvider) SignMessage(_ context.Context, message string) (string, error) {
	if p.connected == nil {
		return "", fmt.Errorf("wallet not connected")
	}
	if message == "" {
		return "", fmt.Errorf("empty message")
	}

	sig, err := p.gen.Generate(65)
	if err != nil {
		return "", err
	}
	return "0x" + sig, nil
}

func (p *MockWalletProvider) supported() []string {
	out := make([]string, 0, len(p.kinds))
	for kind := range p.kinds {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}
