package signature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	var tests = []struct {
		name    string
		payload string
		secret  string
	}{
		{name: "simple", payload: `{"event":"payment.success"}`, secret: "s3cret"},
		{name: "empty payload", payload: "", secret: "s3cret"},
		{name: "unicode", payload: `{"name":"বাংলা"}`, secret: "key"},
		{name: "long secret", payload: `{"a":1}`, secret: "RMYVuo7859qmCssGi4rCB9PqzOnm7dwmqP0yVNFVowLqyqSybrbu0Av1MiX9Qj2K"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Sign([]byte(tt.payload), tt.secret)
			require.Len(t, sig, 64)
			require.True(t, Verify([]byte(tt.payload), tt.secret, sig))
		})
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	payload := []byte(`{"reference_id":"TXN1","amount":500}`)
	secret := "s3cret"
	sig := Sign(payload, secret)

	tampered := make([]byte, len(payload))
	copy(tampered, payload)
	tampered[10] ^= 1
	require.False(t, Verify(tampered, secret, sig))

	badSig := []byte(sig)
	if badSig[0] == 'a' {
		badSig[0] = 'b'
	} else {
		badSig[0] = 'a'
	}
	require.False(t, Verify(payload, secret, string(badSig)))

	require.False(t, Verify(payload, "other-secret", sig))
}

func TestCanonicalizeStable(t *testing.T) {
	type event struct {
		Event string `json:"event"`
		URL   string `json:"url"`
	}

	a, err := Canonicalize(event{Event: "payment.success", URL: "https://svc.example/hook?a=1&b=2"})
	require.NoError(t, err)
	b, err := Canonicalize(event{Event: "payment.success", URL: "https://svc.example/hook?a=1&b=2"})
	require.NoError(t, err)
	require.Equal(t, a, b)

	// no HTML escaping and no trailing newline
	require.Contains(t, string(a), "?a=1&b=2")
	require.NotContains(t, string(a), `\u0026`)
	require.NotEqual(t, byte('\n'), a[len(a)-1])

	// map keys come out sorted, so producer and consumer agree
	m1, err := Canonicalize(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":2}`, string(m1))
}
