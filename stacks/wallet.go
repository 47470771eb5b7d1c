package stacks

import (
	"context"
	"fmt"

	"github.com/sswap/sswap-node/types"
)

// Wallet sends tokens from the platform account. Implementations must attach
// equal-to-amount post-conditions so nothing beyond the stated amount can
// ever leave the sending principal. Amounts are whole tokens.
//
// Only the onramp path holds a Wallet; offramp code has no send capability.
type Wallet interface {
	// SendNative broadcasts a native STX transfer and returns the tx id.
	SendNative(ctx context.Context, to string, amount types.Decimal, memo string) (string, error)
	// SendSIP010 broadcasts a SIP-010 transfer against the given contract id
	// and returns the tx id.
	SendSIP010(ctx context.Context, contractID, to string, amount types.Decimal, memo string) (string, error)
}

// FuncWallet adapts plain functions into a Wallet, for tests.
type FuncWallet struct {
	SendNativeFn func(ctx context.Context, to string, amount types.Decimal, memo string) (string, error)
	SendSIP010Fn func(ctx context.Context, contractID, to string, amount types.Decimal, memo string) (string, error)
}

// SendNative implements Wallet.
func (w FuncWallet) SendNative(ctx context.Context, to string, amount types.Decimal, memo string) (string, error) {
	if w.SendNativeFn == nil {
		return "", fmt.Errorf("SendNative not implemented")
	}
	return w.SendNativeFn(ctx, to, amount, memo)
}

// SendSIP010 implements Wallet.
func (w FuncWallet) SendSIP010(ctx context.Context, contractID, to string, amount types.Decimal, memo string) (string, error) {
	if w.SendSIP010Fn == nil {
		return "", fmt.Errorf("SendSIP010 not implemented")
	}
	return w.SendSIP010Fn(ctx, contractID, to, amount, memo)
}
