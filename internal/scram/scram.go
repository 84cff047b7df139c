// Package scram implements the client half of SASL SCRAM-SHA-256
// (RFC 5802/7677) with channel binding fixed to "unsupported" (gs2 header
// "n,,"), as required by spec.md §4.3. It is a pure state machine: no I/O,
// no net.Conn — pgclient drives it by feeding server messages in and
// writing the returned client messages to the wire, exactly the split
// SPEC_FULL.md §4.1 calls for (contrast with the teacher's
// internal/pool/scram.go, whose scramSHA256Auth performs its own net.Conn
// I/O because it is a relay, not a client).
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Mechanism is the SASL mechanism name this package speaks.
const Mechanism = "SCRAM-SHA-256"

// ErrChannelBindingUnsupported is returned when the server only offers
// SCRAM-SHA-256-PLUS. spec.md §9 open question: documented as a known
// limitation rather than implemented.
var ErrChannelBindingUnsupported = fmt.Errorf("scram: server requires channel binding (SCRAM-SHA-256-PLUS), which this client does not support")

// Stage identifies where a State is in the exchange of spec.md §4.3.
type Stage int

const (
	StageNew Stage = iota
	StageClientFirstSent
	StageClientFinalSent
	StageDone
	StageFailed
)

// State is a resumable client-side SCRAM-SHA-256 exchange.
type State struct {
	stage Stage

	user     string
	password string

	clientNonce      string
	gs2Header        string
	clientFirstBare  string
	serverFirstMsg   string
	authMessage      string

	saltedPassword []byte
	clientKey      []byte
	storedKey      []byte
	serverKey      []byte

	clientFinalWithoutProof string
}

// New creates a SCRAM exchange for the given username/password. Per
// spec.md §4.3, the SCRAM username field is always empty — PostgreSQL
// ignores it and authenticates the startup-message user — but the real
// username is kept here for parity with RFC 5802 client APIs and is not
// sent on the wire.
func New(user, password string) *State {
	return &State{user: user, password: password}
}

// ClientFirst produces "n,,n=,r=<nonce>" and advances to
// StageClientFirstSent. Call this once Authentication SASL has offered
// SCRAM-SHA-256.
func (s *State) ClientFirst() ([]byte, error) {
	if s.stage != StageNew {
		return nil, fmt.Errorf("scram: ClientFirst called out of order (stage %d)", s.stage)
	}

	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("scram: generating nonce: %w", err)
	}
	s.clientNonce = base64.StdEncoding.EncodeToString(nonceBytes)
	s.gs2Header = "n,,"
	s.clientFirstBare = "n=,r=" + s.clientNonce

	s.stage = StageClientFirstSent
	return []byte(s.gs2Header + s.clientFirstBare), nil
}

// Update consumes the server-first-message ("r=...,s=...,i=..."),
// computes the salted password and key material, and prepares the
// client-final-message without yet producing it (spec.md §4.3's
// ClientFinalReady state).
func (s *State) Update(serverFirst []byte) error {
	if s.stage != StageClientFirstSent {
		return fmt.Errorf("scram: Update called out of order (stage %d)", s.stage)
	}
	msg := string(serverFirst)

	nonce, salt, iterations, err := parseServerFirst(msg)
	if err != nil {
		s.stage = StageFailed
		return err
	}
	if !strings.HasPrefix(nonce, s.clientNonce) {
		s.stage = StageFailed
		return fmt.Errorf("scram: server nonce does not start with client nonce")
	}

	s.serverFirstMsg = msg
	s.saltedPassword = pbkdf2.Key([]byte(s.password), salt, iterations, 32, sha256.New)
	s.clientKey = hmacSHA256(s.saltedPassword, []byte("Client Key"))
	s.storedKey = sha256Sum(s.clientKey)
	s.serverKey = hmacSHA256(s.saltedPassword, []byte("Server Key"))

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(s.gs2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, nonce)
	s.authMessage = s.clientFirstBare + "," + s.serverFirstMsg + "," + clientFinalWithoutProof
	s.clientFinalWithoutProof = clientFinalWithoutProof
	return nil
}

// ClientFinal produces "c=...,r=...,p=..." and advances to
// StageClientFinalSent.
func (s *State) ClientFinal() ([]byte, error) {
	if s.authMessage == "" {
		return nil, fmt.Errorf("scram: ClientFinal called before Update")
	}
	clientSignature := hmacSHA256(s.storedKey, []byte(s.authMessage))
	proof := xorBytes(s.clientKey, clientSignature)
	msg := s.clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)
	s.stage = StageClientFinalSent
	return []byte(msg), nil
}

// Finish verifies the server-final-message ("v=<signature>") against the
// expected server signature, per spec.md §4.3's finish transition.
func (s *State) Finish(serverFinal []byte) error {
	if s.stage != StageClientFinalSent {
		return fmt.Errorf("scram: Finish called out of order (stage %d)", s.stage)
	}
	expectedSig := hmacSHA256(s.serverKey, []byte(s.authMessage))
	expected := "v=" + base64.StdEncoding.EncodeToString(expectedSig)
	if string(serverFinal) != expected {
		s.stage = StageFailed
		return fmt.Errorf("scram: server signature mismatch")
	}
	s.stage = StageDone
	return nil
}

// CurrentStage reports where the exchange currently is.
func (s *State) CurrentStage() Stage { return s.stage }

// parseServerFirst parses "r=<nonce>,s=<b64 salt>,i=<iterations>".
func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("scram: decoding salt: %w", err)
			}
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("scram: parsing iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("scram: incomplete server-first-message: %q", msg)
	}
	return nonce, salt, iterations, nil
}

// escapeUsername replaces "=" with "=3D" and "," with "=2C" per RFC 5802.
// PostgreSQL ignores the SCRAM username, but the exchange still has to be
// well-formed.
func escapeUsername(user string) string {
	user = strings.ReplaceAll(user, "=", "=3D")
	user = strings.ReplaceAll(user, ",", "=2C")
	return user
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
