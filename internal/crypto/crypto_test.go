package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Argon2Params{Memory: MinArgon2MemoryKiB, Iterations: 1, Parallelism: 1}

func newTestKeyring(t *testing.T, passphrase string, salt []byte) *Keyring {
	t.Helper()
	k, err := NewKeyring([]byte(passphrase), salt, testParams)
	require.NoError(t, err)
	t.Cleanup(k.Destroy)
	return k
}

func TestArgon2ParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Argon2Params
		wantErr bool
	}{
		{name: "defaults", params: DefaultArgon2Params()},
		{name: "minimum memory", params: testParams},
		{name: "too little memory", params: Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}, wantErr: true},
		{name: "zero iterations", params: Argon2Params{Memory: MinArgon2MemoryKiB, Parallelism: 1}, wantErr: true},
		{name: "zero parallelism", params: Argon2Params{Memory: MinArgon2MemoryKiB, Iterations: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgon2Params)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDeriveMasterKey(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	a, err := DeriveMasterKey([]byte("hunter2"), salt, testParams)
	require.NoError(t, err)
	b, err := DeriveMasterKey([]byte("hunter2"), salt, testParams)
	require.NoError(t, err)
	c, err := DeriveMasterKey([]byte("hunter3"), salt, testParams)
	require.NoError(t, err)

	assert.Len(t, a, KeyLen)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err = DeriveMasterKey(nil, salt, testParams)
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = DeriveMasterKey([]byte("hunter2"), salt[:8], testParams)
	assert.ErrorIs(t, err, ErrInvalidArgon2Params)
}

func TestKeyringSealOpen(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	k := newTestKeyring(t, "correct horse", salt)

	blob, err := k.SealString("transactions.name", "Groceries at Tesco")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(blob, []byte("Tesco")))

	got, err := k.OpenString("transactions.name", blob)
	require.NoError(t, err)
	assert.Equal(t, "Groceries at Tesco", got)

	again, err := k.SealString("transactions.name", "Groceries at Tesco")
	require.NoError(t, err)
	assert.NotEqual(t, blob, again, "nonces must differ between seals")

	t.Run("wrong aad", func(t *testing.T) {
		_, err := k.OpenString("transactions.bank", blob)
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := append([]byte(nil), blob...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := k.OpenString("transactions.name", tampered)
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("short blob", func(t *testing.T) {
		_, err := k.OpenString("transactions.name", []byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		other := newTestKeyring(t, "wrong horse", salt)
		_, err := other.OpenString("transactions.name", blob)
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
	})
}

func TestKeyringIndex(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	k := newTestKeyring(t, "correct horse", salt)

	assert.Equal(t, k.Index("categories", "Food"), k.Index("categories", "Food"))
	assert.NotEqual(t, k.Index("categories", "Food"), k.Index("categories", "food"))
	assert.NotEqual(t, k.Index("categories", "Food"), k.Index("banks", "Food"))
	assert.Len(t, k.Index("banks", "Monzo"), 32)
}

func TestKeyringDestroy(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	k, err := NewKeyring([]byte("pw"), salt, testParams)
	require.NoError(t, err)

	k.Destroy()
	_, err = k.SealString("x", "y")
	assert.ErrorIs(t, err, ErrKeyringClosed)

	var nilRing *Keyring
	nilRing.Destroy()
}
