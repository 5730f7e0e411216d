package resultcrypto

import (
	"errors"
	"testing"

	"github.com/proctorly/proctorly-backend/internal/model"
)

type payload struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	in := payload{Name: "alice", Score: 87}

	blob, err := Encrypt(in)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(blob.IV) != ivLen {
		t.Fatalf("iv length = %d, want %d", len(blob.IV), ivLen)
	}
	if blob.Data == "" {
		t.Fatal("empty ciphertext")
	}

	var out payload
	if err := Decrypt(blob, &out); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestEncryptFreshIVPerCall(t *testing.T) {
	a, err := Encrypt(payload{Name: "x"})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := Encrypt(payload{Name: "x"})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	same := true
	for i := range a.IV {
		if a.IV[i] != b.IV[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("two encryptions reused the same iv")
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	good, err := Encrypt(payload{Name: "bob", Score: 1})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	cases := []struct {
		name string
		blob model.EncryptedBlob
	}{
		{"truncated ciphertext", model.EncryptedBlob{IV: good.IV, Data: good.Data[:len(good.Data)-8]}},
		{"flipped iv byte", model.EncryptedBlob{IV: flipFirst(good.IV), Data: good.Data}},
		{"short iv", model.EncryptedBlob{IV: good.IV[:4], Data: good.Data}},
		{"iv value out of range", model.EncryptedBlob{IV: append([]int{300}, good.IV[1:]...), Data: good.Data}},
		{"not base64", model.EncryptedBlob{IV: good.IV, Data: "!!not-base64!!"}},
		{"empty blob", model.EncryptedBlob{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out payload
			err := Decrypt(tc.blob, &out)
			if !errors.Is(err, ErrDecrypt) {
				t.Fatalf("got %v, want ErrDecrypt", err)
			}
			if out != (payload{}) {
				t.Fatalf("partial plaintext leaked: %+v", out)
			}
		})
	}
}

func flipFirst(iv []int) []int {
	out := make([]int, len(iv))
	copy(out, iv)
	out[0] ^= 0xff
	return out
}
