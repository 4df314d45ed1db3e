// Package scram implements the client side of SCRAM-SHA-256 (RFC 5802,
// RFC 7677) as used by PostgreSQL: gs2 header "n,," with no channel
// binding, and server signature verification on the final message.
//
// The package is pure computation over strings and bytes; message
// transport belongs to the caller.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Mechanism is the SASL mechanism name this package implements.
	Mechanism = "SCRAM-SHA-256"

	gs2Header  = "n,,"
	nonceLen   = 24
	saltedLen  = 32
	nonceChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Conversation tracks the state of one SCRAM exchange. The state is
// handshake-scoped: callers discard the Conversation on success or failure
// and never attach it to a long-lived connection.
type Conversation struct {
	username string
	password string

	clientNonce     string
	clientFirstBare string
	serverKey       []byte
	authMessage     string
}

// NewConversation creates a Conversation with a fresh random nonce.
func NewConversation(username, password string) (*Conversation, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}
	return NewConversationWithNonce(username, password, nonce), nil
}

// NewConversationWithNonce creates a Conversation with a caller-supplied
// client nonce. Tests use this to reproduce published vectors.
func NewConversationWithNonce(username, password, nonce string) *Conversation {
	c := &Conversation{
		username:    username,
		password:    password,
		clientNonce: nonce,
	}
	c.clientFirstBare = "n=" + username + ",r=" + nonce
	return c
}

// ClientFirstMessage returns the client-first-message including the gs2
// header: "n,,n=<user>,r=<nonce>".
func (c *Conversation) ClientFirstMessage() string {
	return gs2Header + c.clientFirstBare
}

// HandleServerFirst consumes the server-first-message
// ("r=<nonce>,s=<salt>,i=<iterations>") and returns the
// client-final-message including the proof.
//
// The iteration count is used exactly as sent; there is no floor or
// default. Any missing or malformed field is an error, and the exchange
// cannot be resumed after one.
func (c *Conversation) HandleServerFirst(serverFirst string) (string, error) {
	attrs := parseAttributes(serverFirst)

	serverNonce, ok := attrs["r"]
	if !ok {
		return "", errors.New("server-first-message missing nonce")
	}
	if !strings.HasPrefix(serverNonce, c.clientNonce) {
		return "", errors.New("server nonce does not extend client nonce")
	}
	saltB64, ok := attrs["s"]
	if !ok {
		return "", errors.New("server-first-message missing salt")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("invalid salt encoding: %w", err)
	}
	iterStr, ok := attrs["i"]
	if !ok {
		return "", errors.New("server-first-message missing iteration count")
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return "", fmt.Errorf("invalid iteration count %q", iterStr)
	}

	saltedPassword := pbkdf2.Key([]byte(c.password), salt, iterations, saltedLen, sha256.New)

	// ClientKey = HMAC(SaltedPassword, "Client Key"); StoredKey = SHA256(ClientKey)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKeyHash := sha256.Sum256(clientKey)
	storedKey := storedKeyHash[:]

	// ServerKey is retained to verify the server signature in the final step.
	c.serverKey = hmacSHA256(saltedPassword, []byte("Server Key"))

	channelBinding := base64.StdEncoding.EncodeToString([]byte(gs2Header))
	clientFinalWithoutProof := "c=" + channelBinding + ",r=" + serverNonce

	c.authMessage = c.clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(c.authMessage))
	clientProof := make([]byte, len(clientKey))
	for i := range clientKey {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}

	return clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof), nil
}

// VerifyServerFinal consumes the server-final-message ("v=<signature>" or
// "e=<error>") and checks the server signature against the retained server
// key. A mismatch means the server does not actually know the password's
// verifier; treat it as fatal.
func (c *Conversation) VerifyServerFinal(serverFinal string) error {
	if errMsg, ok := strings.CutPrefix(serverFinal, "e="); ok {
		return fmt.Errorf("server rejected authentication: %s", errMsg)
	}
	sigB64, ok := strings.CutPrefix(serverFinal, "v=")
	if !ok {
		return errors.New("server-final-message missing signature")
	}
	serverSignature, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("invalid server signature encoding: %w", err)
	}
	if c.serverKey == nil || c.authMessage == "" {
		return errors.New("server-final-message received before server-first-message")
	}

	expected := hmacSHA256(c.serverKey, []byte(c.authMessage))
	if !hmac.Equal(expected, serverSignature) {
		return errors.New("server signature mismatch")
	}
	return nil
}

// parseAttributes parses a comma-separated list of key=value attributes.
func parseAttributes(msg string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		if len(part) >= 2 && part[1] == '=' {
			attrs[part[:1]] = part[2:]
		}
	}
	return attrs
}

// randomNonce returns a 24-character alphanumeric nonce.
func randomNonce() (string, error) {
	raw := make([]byte, nonceLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := make([]byte, nonceLen)
	for i, b := range raw {
		out[i] = nonceChars[int(b)%len(nonceChars)]
	}
	return string(out), nil
}

// hmacSHA256 computes HMAC-SHA256.
func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
