package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
)

var fastParams = config.PasswordConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("very-secure-password", fastParams)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), hash)

	ok, err := VerifyPassword("very-secure-password", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("bogus-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	a, err := HashPassword("toffee", fastParams)
	require.NoError(t, err)
	b, err := HashPassword("toffee", fastParams)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	_, err := HashPassword("", fastParams)
	assert.Error(t, err)
}

func TestParamsAreClamped(t *testing.T) {
	p := paramsFor(config.PasswordConfig{ArgonMemoryKB: 1, ArgonTime: 99, ArgonParallelism: 0, ArgonSaltLen: 2, ArgonKeyLen: 1000})
	assert.Equal(t, argonParams{memory: 8, time: 10, threads: 1, saltLen: 8, keyLen: 64}, p)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	good, err := HashPassword("lollipop", fastParams)
	require.NoError(t, err)
	fields := strings.Split(good, "$")

	cases := map[string]string{
		"not a hash":     "not-a-hash",
		"wrong variant":  strings.Replace(good, "argon2id", "argon2i", 1),
		"wrong version":  strings.Replace(good, "v=19", "v=16", 1),
		"bad params":     strings.Replace(good, "m=8192", "m=lots", 1),
		"bad salt":       strings.Join([]string{"", fields[1], fields[2], fields[3], "!!", fields[5]}, "$"),
		"empty key":      strings.Join([]string{"", fields[1], fields[2], fields[3], fields[4], ""}, "$"),
		"extra segment":  good + "$extra",
		"leading garbage": "x" + good,
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := VerifyPassword("lollipop", encoded)
			assert.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	strong := fastParams
	strong.ArgonMemoryKB = 65536
	strong.ArgonTime = 3

	hash, err := HashPassword("chocolate-cake", fastParams)
	require.NoError(t, err)

	assert.False(t, NeedsRehash(hash, fastParams))
	assert.True(t, NeedsRehash(hash, strong))
	assert.True(t, NeedsRehash("garbage", strong))
}
