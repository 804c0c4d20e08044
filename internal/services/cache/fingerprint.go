package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/chatmux/chatmux/internal/models"
)

// FingerprintVersion is part of every response key. Bump it whenever
// the fields of RequestFingerprint change.
const FingerprintVersion = "v1"

// RequestFingerprint holds the meaning-bearing inputs of a provider call
type RequestFingerprint struct {
	Message     string `json:"message"`
	Mode        string `json:"mode"`
	HistoryHash string `json:"history_hash"`
	CodeHash    string `json:"code_hash"`
	ErrorHash   string `json:"error_hash"`
}

// NewFingerprint builds a fingerprint from a request and the history it will be sent with
func NewFingerprint(req *models.ChatRequest, history []models.ConversationTurn) RequestFingerprint {
	return RequestFingerprint{
		Message:     req.Content,
		Mode:        string(req.Mode),
		HistoryHash: HashHistory(history),
		CodeHash:    ShortHash(req.Code),
		ErrorHash:   ShortHash(req.Error),
	}
}

// Key returns the versioned cache key for the fingerprint
func (f RequestFingerprint) Key() string {
	data, _ := json.Marshal(f)
	sum := sha256.Sum256(data)
	return "resp:" + FingerprintVersion + ":" + hex.EncodeToString(sum[:])
}

// QueryKey derives the mode detection key for a query
func QueryKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "mode:" + FingerprintVersion + ":" + hex.EncodeToString(sum[:])
}

// ShortHash is a 16 hex digit digest of s
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// HashHistory digests an ordered list of turns
func HashHistory(turns []models.ConversationTurn) string {
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString(string(turn.Role))
		b.WriteByte(0)
		b.WriteString(turn.Content)
		b.WriteByte(0)
	}
	return ShortHash(b.String())
}
