package api

// ChallengeRequest starts the key-based handshake.
type ChallengeRequest struct {
	PublicKey string `json:"public_key" validate:"required"`
}

// VerifyRequest completes the handshake with a signature over the
// challenge string. Signature is the base64 of the SSH wire-encoded
// signature.
type VerifyRequest struct {
	Challenge string `json:"challenge" validate:"required"`
	PublicKey string `json:"public_key" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// CreateNoteRequest is the body of POST /notes.
type CreateNoteRequest struct {
	Title   string   `json:"title" validate:"required"`
	Tags    []string `json:"tags"`
	Content string   `json:"content"`
}

// UpdateNoteRequest is the body of PUT /notes/{id}. Absent fields keep
// their current values; a present tags list fully replaces the old one.
type UpdateNoteRequest struct {
	Title   *string   `json:"title"`
	Tags    *[]string `json:"tags"`
	Content *string   `json:"content"`
}
