package app

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tailbot/internal/config"
	"github.com/alanyoungcy/tailbot/internal/crypto"
)

const walletKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLoadSignerUnusableKeyDisablesTrading(t *testing.T) {
	dir := t.TempDir()
	sealed := filepath.Join(dir, "wallet.json")
	require.NoError(t, crypto.WriteKeystore(sealed, walletKey, "correct horse"))

	cases := []struct {
		name   string
		wallet config.WalletConfig
		want   string
	}{
		{"none", config.WalletConfig{}, "no wallet key configured"},
		{"malformed raw key", config.WalletConfig{PrivateKey: "0xnothex"}, "wallet key unusable"},
		{"missing keystore", config.WalletConfig{
			KeystorePath: filepath.Join(dir, "absent.json"), KeystorePassword: "pw",
		}, "wallet key unusable"},
		{"wrong password", config.WalletConfig{
			KeystorePath: sealed, KeystorePassword: "battery staple",
		}, "wallet key unusable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := config.Defaults()
			cfg.Wallet = tc.wallet

			signer := loadSigner(context.Background(), &cfg, slog.New(slog.NewTextHandler(&buf, nil)))
			assert.Nil(t, signer)
			assert.Contains(t, buf.String(), "level=WARN")
			assert.Contains(t, buf.String(), tc.want)
		})
	}
}

func TestLoadSignerFromKeystore(t *testing.T) {
	sealed := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, crypto.WriteKeystore(sealed, walletKey, "correct horse"))

	cfg := config.Defaults()
	cfg.Wallet = config.WalletConfig{KeystorePath: sealed, KeystorePassword: "correct horse"}

	signer := loadSigner(context.Background(), &cfg, slog.New(slog.DiscardHandler))
	require.NotNil(t, signer)

	want, err := crypto.NewSigner(walletKey, cfg.Polymarket.ChainID)
	require.NoError(t, err)
	assert.Equal(t, want.Address(), signer.Address())
}
