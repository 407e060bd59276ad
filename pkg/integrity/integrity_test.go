package integrity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateAndVerifyRoundTrip(t *testing.T) {
	data := []byte("tarball contents go here")

	for _, alg := range []Algorithm{SHA1, SHA256, SHA384, SHA512} {
		t.Run(string(alg), func(t *testing.T) {
			sri, err := Calculate(data, alg)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(sri, string(alg)+"-"))
			assert.True(t, Verify(data, sri))
		})
	}
}

func TestCalculateRejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := Calculate([]byte("x"), "md5")
	require.Error(t, err)
	var unsupported *UnsupportedAlgorithmError
	assert.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "md5", unsupported.Algorithm)
}

func TestVerifyDetectsTampering(t *testing.T) {
	data := []byte("original bytes")
	sri, err := Calculate(data, SHA512)
	require.NoError(t, err)

	assert.False(t, Verify([]byte("tampered bytes"), sri))
}

func TestVerifyPassesOnAnyMatchingEntry(t *testing.T) {
	data := []byte("payload")
	strong, err := Calculate(data, SHA512)
	require.NoError(t, err)

	// A bogus sha1 entry alongside a correct sha512 entry must still verify:
	// verify succeeds if any supported-algorithm entry matches.
	combined := "sha1-bm90dGhlcmlnaHRkaWdlc3Q= " + strong
	assert.True(t, Verify(data, combined))
}

func TestVerifyDiscardsUnsupportedAndMalformedTokens(t *testing.T) {
	data := []byte("payload")
	strong, err := Calculate(data, SHA256)
	require.NoError(t, err)

	mixed := "md5-deadbeef== garbageToken " + strong
	assert.True(t, Verify(data, mixed))
}

func TestVerifyToleratesCaseAndOptionsSuffix(t *testing.T) {
	data := []byte("payload")
	sri, err := Calculate(data, SHA256)
	require.NoError(t, err)
	upper := strings.ToUpper(sri[:6]) + sri[6:] // upper-case the "sha256" token
	withOptions := upper + "?foo=bar"

	assert.True(t, Verify(data, withOptions))
}

func TestVerifyRejectsEmptyIntegrityString(t *testing.T) {
	assert.False(t, Verify([]byte("anything"), ""))
}

func TestStrongestPicksByPriorityNotOrder(t *testing.T) {
	// sha1 appears first in the string but sha512 must still win.
	alg, ok := Strongest("sha1-AAAA sha256-CCCC sha512-BBBB")
	require.True(t, ok)
	assert.Equal(t, SHA512, alg)
}

func TestStrongestReturnsFalseWhenNothingSupported(t *testing.T) {
	_, ok := Strongest("md5-deadbeef==")
	assert.False(t, ok)
}

func TestShasumMatchesLegacyDigest(t *testing.T) {
	data := []byte("legacy shasum input")
	got := Shasum(data)
	assert.Len(t, got, 40) // hex-encoded sha1 is always 40 chars
}
