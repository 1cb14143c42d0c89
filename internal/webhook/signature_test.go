package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigest_Concat(t *testing.T) {
	body := []byte(`{"event_name":"status_updated"}`)
	secret := []byte("s3cr3t")

	sum := sha256.Sum256(append(append([]byte{}, body...), secret...))
	want := hex.EncodeToString(sum[:])

	require.Equal(t, want, Digest(SchemeConcat, body, secret))
	require.Equal(t, strings.ToLower(want), want)
}

func TestVerify_RoundTrip(t *testing.T) {
	bodies := [][]byte{
		[]byte(""),
		[]byte(`{}`),
		[]byte(`{"event_name":"status_updated","payment_reference":"PR1"}`),
		[]byte("not even json \x00\xff"),
	}
	for _, scheme := range []Scheme{SchemeConcat, SchemeHMAC} {
		for _, body := range bodies {
			secret := []byte("shared-secret")
			sig := Digest(scheme, body, secret)
			require.True(t, Verify(scheme, body, sig, secret), "scheme=%s body=%q", scheme, body)
		}
	}
}

func TestVerify_SingleBitFlip(t *testing.T) {
	body := []byte(`{"event_name":"status_updated","payment_reference":"PR1"}`)
	secret := []byte("shared-secret")

	for _, scheme := range []Scheme{SchemeConcat, SchemeHMAC} {
		sig := Digest(scheme, body, secret)

		for i := range body {
			for bit := 0; bit < 8; bit++ {
				mutated := append([]byte{}, body...)
				mutated[i] ^= 1 << bit
				if Verify(scheme, mutated, sig, secret) {
					t.Fatalf("scheme=%s: body flip at byte %d bit %d still verifies", scheme, i, bit)
				}
			}
		}
		for i := range secret {
			for bit := 0; bit < 8; bit++ {
				mutated := append([]byte{}, secret...)
				mutated[i] ^= 1 << bit
				if Verify(scheme, body, sig, mutated) {
					t.Fatalf("scheme=%s: secret flip at byte %d bit %d still verifies", scheme, i, bit)
				}
			}
		}
	}
}

func TestVerify_CaseSensitive(t *testing.T) {
	body := []byte(`{"event_name":"status_updated"}`)
	secret := []byte("k")
	sig := Digest(SchemeConcat, body, secret)

	require.False(t, Verify(SchemeConcat, body, strings.ToUpper(sig), secret))
	require.False(t, Verify(SchemeConcat, body, "", secret))
	require.False(t, Verify(SchemeConcat, body, sig[:len(sig)-1], secret))
}

func TestSchemesDiffer(t *testing.T) {
	body := []byte(`{"event_name":"status_updated"}`)
	secret := []byte("k")
	require.NotEqual(t, Digest(SchemeConcat, body, secret), Digest(SchemeHMAC, body, secret))
	require.False(t, Verify(SchemeHMAC, body, Digest(SchemeConcat, body, secret), secret))
}

func TestParseScheme(t *testing.T) {
	s, err := ParseScheme("")
	require.NoError(t, err)
	require.Equal(t, SchemeConcat, s)

	s, err = ParseScheme(" HMAC ")
	require.NoError(t, err)
	require.Equal(t, SchemeHMAC, s)

	_, err = ParseScheme("md5")
	require.Error(t, err)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event_name":"status_updated","payment_reference":"PR1","order_reference":"ORD1"}`))
	require.NoError(t, err)
	require.Equal(t, EventStatusUpdated, ev.EventName)
	require.Equal(t, "PR1", ev.PaymentReference)
	require.Equal(t, "ORD1", ev.OrderReference)

	_, err = ParseEvent([]byte(`{"event_name":`))
	require.Error(t, err)

	_, err = ParseEvent([]byte(`{"payment_reference":"PR1"}`))
	require.Error(t, err)
}
