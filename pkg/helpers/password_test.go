package helpers

import "testing"

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	const plain = "Passw0rd!"

	hash, err := HashPassword(plain)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if hash == plain {
		t.Fatal("hash equals plaintext")
	}
	if !CompareHashAndPassword(hash, plain) {
		t.Fatal("verify failed for correct password")
	}
	if CompareHashAndPassword(hash, "wrong-password") {
		t.Fatal("verify succeeded for wrong password")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	t.Parallel()

	const plain = "Passw0rd!"

	h1, err := HashPassword(plain)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	h2, err := HashPassword(plain)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password are identical; salt missing")
	}
	if !CompareHashAndPassword(h1, plain) || !CompareHashAndPassword(h2, plain) {
		t.Fatal("verify failed for one of the salted hashes")
	}
}
