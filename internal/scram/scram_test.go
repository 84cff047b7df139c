package scram

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// mockServer plays the server side of RFC 5802 against the client State,
// used to exercise the full handshake (spec.md §8 scenario A) without a
// live PostgreSQL instance.
type mockServer struct {
	user, password string
	salt           []byte
	iterations     int
	serverNonce    string
}

func (m *mockServer) serverFirst(clientFirst []byte) string {
	// clientFirst = "n,,n=,r=<clientNonce>"
	parts := strings.SplitN(string(clientFirst), ",,", 2)
	bare := parts[1]
	var clientNonce string
	for _, f := range strings.Split(bare, ",") {
		if strings.HasPrefix(f, "r=") {
			clientNonce = f[2:]
		}
	}
	combined := clientNonce + m.serverNonce
	return fmt.Sprintf("r=%s,s=%s,i=%d", combined, base64.StdEncoding.EncodeToString(m.salt), m.iterations)
}

func TestSCRAMHandshakeSucceeds(t *testing.T) {
	server := &mockServer{
		user:       "postgres",
		password:   "passw0rd",
		salt:       []byte("abcdsalt12345678"),
		iterations: 4096,
		serverNonce: "serverNonceValue==",
	}

	state := New("postgres", "passw0rd")
	clientFirst, err := state.ClientFirst()
	if err != nil {
		t.Fatal(err)
	}

	serverFirstMsg := server.serverFirst(clientFirst)
	if err := state.Update([]byte(serverFirstMsg)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	clientFinal, err := state.ClientFinal()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(clientFinal), ",p=") {
		t.Fatalf("client-final missing proof: %q", clientFinal)
	}

	// Compute the real expected server signature using the same key
	// material the client derived, then verify Finish accepts it.
	expectedSig := hmacSHA256(hmacSHA256(pbkdf2.Key([]byte("passw0rd"), server.salt, server.iterations, 32, sha256.New), []byte("Server Key")), []byte(authMessageFor(state, clientFirst, serverFirstMsg, string(clientFinal))))
	serverFinalMsg := "v=" + base64.StdEncoding.EncodeToString(expectedSig)

	if err := state.Finish([]byte(serverFinalMsg)); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if state.CurrentStage() != StageDone {
		t.Fatalf("stage = %v, want StageDone", state.CurrentStage())
	}
}

func authMessageFor(state *State, clientFirst []byte, serverFirst, clientFinal string) string {
	idx := strings.Index(clientFinal, ",p=")
	withoutProof := clientFinal[:idx]
	// clientFirst includes the gs2 header "n,,"; authMessage uses only
	// the bare part (without gs2 header), matching state.clientFirstBare.
	bare := strings.SplitN(string(clientFirst), ",,", 2)[1]
	return bare + "," + serverFirst + "," + withoutProof
}

func TestSCRAMWrongSaltFails(t *testing.T) {
	state := New("postgres", "passw0rd")
	if _, err := state.ClientFirst(); err != nil {
		t.Fatal(err)
	}

	// Off-by-one salt relative to what the password was actually hashed
	// with: feed a well-formed but semantically wrong server-first, then
	// check that Finish rejects the bogus server signature (spec.md §8
	// scenario A: "an off-by-one salt produces AuthFailure").
	if err := state.Update([]byte("r=" + state.clientNonceForTest() + "xyz,s=" + base64.StdEncoding.EncodeToString([]byte("wrongsalt1234567")) + ",i=4096")); err != nil {
		t.Fatal(err)
	}
	if _, err := state.ClientFinal(); err != nil {
		t.Fatal(err)
	}
	if err := state.Finish([]byte("v=bm90dGhlcmVhbHNpZw==")); err == nil {
		t.Fatal("expected AuthFailure on mismatched server signature")
	}
	if state.CurrentStage() != StageFailed {
		t.Fatalf("stage = %v, want StageFailed", state.CurrentStage())
	}
}

func (s *State) clientNonceForTest() string { return s.clientNonce }

func TestEscapeUsername(t *testing.T) {
	got := escapeUsername("a=b,c")
	want := "a=3Db=2Cc"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
