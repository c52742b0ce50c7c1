package publish

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestParsePrivateKey(t *testing.T) {
	for _, in := range []string{testKeyHex, strings.TrimPrefix(testKeyHex, "0x"), "  " + testKeyHex + "\n"} {
		key, err := ParsePrivateKey(in)
		require.NoError(t, err, in)
		require.Equal(t, common.HexToAddress(testAddress), NewKeySigner(key).Address())
	}

	_, err := ParsePrivateKey("0x1234")
	require.Error(t, err)
}

func TestKeySignerSignsForChain(t *testing.T) {
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)
	s := NewKeySigner(key)
	chainID := big.NewInt(11155111)

	tx := types.NewTx(&types.DynamicFeeTx{ChainID: chainID, Nonce: 3, Gas: 21_000, GasFeeCap: big.NewInt(2), GasTipCap: big.NewInt(1)})
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	require.Equal(t, s.Address(), from)
}

func TestCheckAddress(t *testing.T) {
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)
	s := NewKeySigner(key)

	require.NoError(t, CheckAddress(s, ""))
	require.NoError(t, CheckAddress(s, testAddress))
	require.NoError(t, CheckAddress(s, strings.ToLower(testAddress)))
	require.NoError(t, CheckAddress(s, " "+testAddress+"\n"))
	require.ErrorIs(t, CheckAddress(s, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), ErrAddressMismatch)
	require.ErrorContains(t, CheckAddress(s, "not-an-address"), "invalid address")
}

func TestLoadKeystore(t *testing.T) {
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)
	blob, err := keystore.EncryptKey(&keystore.Key{
		Address:    common.HexToAddress(testAddress),
		PrivateKey: key,
	}, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "deployer.json")
	passPath := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(keyPath, blob, 0o600))
	require.NoError(t, os.WriteFile(passPath, []byte("hunter2\n"), 0o600))

	loaded, err := LoadKeystore(keyPath, passPath)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(testAddress), NewKeySigner(loaded).Address())

	require.NoError(t, os.WriteFile(passPath, []byte("wrong"), 0o600))
	_, err = LoadKeystore(keyPath, passPath)
	require.ErrorContains(t, err, "decrypt keystore")

	_, err = LoadKeystore(filepath.Join(dir, "missing.json"), "")
	require.ErrorContains(t, err, "read keystore")
}
