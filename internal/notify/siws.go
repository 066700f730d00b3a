package notify

import (
	"context"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// SignInPayload is the sign-in-with-Solana message presented to the wallet.
type SignInPayload struct {
	Domain    string `json:"domain"`
	Address   string `json:"address"`
	URI       string `json:"uri"`
	Statement string `json:"statement"`
	Version   string `json:"version"`
	ChainID   int    `json:"chainId"`
}

// Signer signs an arbitrary message with the wallet key.
type Signer interface {
	SignMessage(message []byte) ([]byte, error)
}

// ValidateIdentity checks that address is base58 for 32 bytes that form a
// valid ed25519 curve point.
func ValidateIdentity(address string) error {
	decoded, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("identity must be 32 bytes, got %d", len(decoded))
	}
	if _, err := new(edwards25519.Point).SetBytes(decoded); err != nil {
		return fmt.Errorf("identity is not a valid curve point: %w", err)
	}
	return nil
}

// PrepareMessage renders the canonical sign-in message text.
func (p *SignInPayload) PrepareMessage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Solana account:\n", p.Domain)
	fmt.Fprintf(&b, "%s\n", p.Address)
	fmt.Fprintf(&b, "\n%s\n", p.Statement)
	fmt.Fprintf(&b, "\nURI: %s\n", p.URI)
	fmt.Fprintf(&b, "Version: %s\n", p.Version)
	fmt.Fprintf(&b, "Chain ID: %d", p.ChainID)
	return b.String()
}

// authRequest is the auth endpoint payload: the sign-in fields plus the
// base58-encoded signature.
type authRequest struct {
	SignInPayload
	SignatureString string `json:"signatureString"`
}

// authResponse carries the session token.
type authResponse struct {
	Token string `json:"token"`
}

// Authenticate signs the sign-in message with the wallet and exchanges it for
// a session token.
func (c *Client) Authenticate(ctx context.Context, payload SignInPayload, signer Signer) (string, error) {
	if err := ValidateIdentity(payload.Address); err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}

	signature, err := signer.SignMessage([]byte(payload.PrepareMessage()))
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(authRequest{
			SignInPayload:   payload,
			SignatureString: base58.Encode(signature),
		}).
		Post("/auth")
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}

	var auth authResponse
	if err := decode(resp, &auth); err != nil {
		return "", err
	}
	if auth.Token == "" {
		return "", &APIError{Message: "empty token", Status: resp.StatusCode()}
	}
	return auth.Token, nil
}
