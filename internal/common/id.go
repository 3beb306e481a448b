package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique document ID with the "doc_" prefix
// Format: doc_<uuid>
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewPassageID generates a unique passage ID with the "chn_" prefix
// Format: chn_<uuid>
func NewPassageID() string {
	return "chn_" + uuid.New().String()
}

// NewSessionID generates a unique answer session ID with the "ans_" prefix
// Format: ans_<uuid>
func NewSessionID() string {
	return "ans_" + uuid.New().String()
}
