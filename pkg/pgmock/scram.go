package pgmock

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// scramServer handles the server side of SCRAM-SHA-256 for mock
// authentication, following the PostgreSQL convention of ignoring the
// username inside the SCRAM messages (the startup message already carries
// it).
type scramServer struct {
	password       string
	iterationCount int
	salt           []byte

	clientFirstMsgBare string
	serverFirstMsg     string
	clientNonce        string
	serverNonce        string
}

// newSCRAMServer creates a SCRAM-SHA-256 server for the given password.
func newSCRAMServer(password string, iterationCount int) (*scramServer, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return &scramServer{
		password:       password,
		iterationCount: iterationCount,
		salt:           salt,
	}, nil
}

// processClientFirstMessage consumes the client-first-message and returns
// the server-first-message.
func (s *scramServer) processClientFirstMessage(clientFirstMsg string) (string, error) {
	// gs2-header ("n,," here) then client-first-message-bare
	parts := strings.SplitN(clientFirstMsg, ",", 3)
	if len(parts) < 3 {
		return "", errors.New("invalid client-first-message format")
	}
	s.clientFirstMsgBare = parts[2]

	bareAttrs := parseAttributes(s.clientFirstMsgBare)
	clientNonce, ok := bareAttrs["r"]
	if !ok {
		return "", errors.New("missing client nonce in client-first-message")
	}
	s.clientNonce = clientNonce

	serverNonceBytes := make([]byte, 18)
	if _, err := rand.Read(serverNonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate server nonce: %w", err)
	}
	s.serverNonce = base64.StdEncoding.EncodeToString(serverNonceBytes)

	combinedNonce := s.clientNonce + s.serverNonce
	saltB64 := base64.StdEncoding.EncodeToString(s.salt)
	s.serverFirstMsg = fmt.Sprintf("r=%s,s=%s,i=%d", combinedNonce, saltB64, s.iterationCount)

	return s.serverFirstMsg, nil
}

// processClientFinalMessage consumes the client-final-message and returns
// the server-final-message, or an error if the proof does not verify.
func (s *scramServer) processClientFinalMessage(clientFinalMsg string) (string, error) {
	attrs := parseAttributes(clientFinalMsg)

	receivedNonce, ok := attrs["r"]
	if !ok {
		return "", errors.New("missing nonce in client-final-message")
	}
	if receivedNonce != s.clientNonce+s.serverNonce {
		return "", errors.New("nonce mismatch")
	}

	proofB64, ok := attrs["p"]
	if !ok {
		return "", errors.New("missing proof in client-final-message")
	}
	clientProof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return "", fmt.Errorf("invalid proof encoding: %w", err)
	}

	clientFinalWithoutProof := removeProof(clientFinalMsg)
	authMessage := s.clientFirstMsgBare + "," + s.serverFirstMsg + "," + clientFinalWithoutProof

	saltedPassword := pbkdf2.Key([]byte(s.password), s.salt, s.iterationCount, 32, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKeyHash := sha256.Sum256(clientKey)
	storedKey := storedKeyHash[:]
	clientSignature := hmacSHA256(storedKey, []byte(authMessage))

	if len(clientProof) != len(clientSignature) {
		return "", errors.New("proof length mismatch")
	}
	recoveredClientKey := make([]byte, len(clientProof))
	for i := range clientProof {
		recoveredClientKey[i] = clientProof[i] ^ clientSignature[i]
	}
	recoveredStoredKeyHash := sha256.Sum256(recoveredClientKey)
	if !hmac.Equal(storedKey, recoveredStoredKeyHash[:]) {
		return "", errors.New("authentication failed")
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	serverSignature := hmacSHA256(serverKey, []byte(authMessage))
	return "v=" + base64.StdEncoding.EncodeToString(serverSignature), nil
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

// removeProof removes the proof attribute from a client-final-message.
func removeProof(msg string) string {
	re := regexp.MustCompile(`,p=[^,]*$`)
	return re.ReplaceAllString(msg, "")
}

// hmacSHA256 computes HMAC-SHA256.
func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
