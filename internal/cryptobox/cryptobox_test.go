package cryptobox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeProducesMatchingSessionKeys(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	aliceBox, err := DeriveSessionBox(alice.Private, bob.Public, alice.Public, "ascii-chat-session")
	require.NoError(t, err)
	bobBox, err := DeriveSessionBox(bob.Private, alice.Public, bob.Public, "ascii-chat-session")
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox")
	sealed, err := aliceBox.Seal(plaintext, []byte("header"))
	require.NoError(t, err)

	opened, err := bobBox.Open(sealed, []byte("header"))
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()
	box, err := DeriveSessionBox(alice.Private, bob.Public, alice.Public, "info")
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("payload"), nil)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = box.Open(sealed, nil)
	require.Error(t, err)
}

func TestOpenRejectsWrongAdditionalData(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()
	box, err := DeriveSessionBox(alice.Private, bob.Public, alice.Public, "info")
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("payload"), []byte("correct-aad"))
	require.NoError(t, err)

	_, err = box.Open(sealed, []byte("wrong-aad"))
	require.Error(t, err)
}

func TestOpenRejectsShortCiphertext(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()
	box, err := DeriveSessionBox(alice.Private, bob.Public, alice.Public, "info")
	require.NoError(t, err)

	_, err = box.Open([]byte{1, 2, 3}, nil)
	require.Error(t, err)
}

func TestGenerateKeyPairProducesDistinctKeys(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NotEqual(t, kp1.Private, kp2.Private)
	require.NotEqual(t, kp1.Public, kp2.Public)
}
