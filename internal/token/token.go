// Package token implements capability-token authority for events. Possession
// of a token grants a fixed permission tier; there are no users or sessions.
// Only SHA-256 hashes of the tokens are ever persisted, so a leak of the
// event record does not leak usable tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

type Tier string

const (
	TierAdmin  Tier = "admin"
	TierScorer Tier = "scorer"
	TierViewer Tier = "viewer"
)

type Permissions struct {
	CanEditEvent     bool
	CanManageTeams   bool
	CanSubmitScores  bool
	CanEditScores    bool
	CanDeleteScores  bool
	CanFinalizeEvent bool
	CanViewBoard     bool
}

var tierPermissions = map[Tier]Permissions{
	TierAdmin: {
		CanEditEvent:     true,
		CanManageTeams:   true,
		CanSubmitScores:  true,
		CanEditScores:    true,
		CanDeleteScores:  true,
		CanFinalizeEvent: true,
		CanViewBoard:     true,
	},
	TierScorer: {
		CanSubmitScores: true,
		CanViewBoard:    true,
	},
	TierViewer: {
		CanViewBoard: true,
	},
}

func PermissionsFor(tier Tier) Permissions {
	return tierPermissions[tier]
}

// ParseTier maps a wire name to its tier constant.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierAdmin, TierScorer, TierViewer:
		return Tier(s), true
	}
	return "", false
}

// Plaintext holds the three bearer secrets. They are returned to the event
// creator exactly once and never stored.
type Plaintext struct {
	Admin  string `json:"admin_token"`
	Scorer string `json:"scorer_token"`
	Viewer string `json:"viewer_token"`
}

// Hashes is what gets persisted on the event row.
type Hashes struct {
	Admin  string
	Scorer string
	Viewer string
}

const (
	adminTokenBytes = 32
	// Viewer tokens are shorter so share links stay manageable.
	viewerTokenBytes = 24
)

// Generate produces one random hex token of n bytes.
func Generate(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GenerateEventTokens mints all three tokens for a new event.
func GenerateEventTokens() (Plaintext, Hashes, error) {
	admin, err := Generate(adminTokenBytes)
	if err != nil {
		return Plaintext{}, Hashes{}, err
	}
	scorer, err := Generate(adminTokenBytes)
	if err != nil {
		return Plaintext{}, Hashes{}, err
	}
	viewer, err := Generate(viewerTokenBytes)
	if err != nil {
		return Plaintext{}, Hashes{}, err
	}
	plain := Plaintext{Admin: admin, Scorer: scorer, Viewer: viewer}
	hashes := Hashes{Admin: Hash(admin), Scorer: Hash(scorer), Viewer: Hash(viewer)}
	return plain, hashes, nil
}

func Hash(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Validate resolves which tier, if any, the plaintext token grants. It is a
// pure function of (plaintext, stored hashes) with no side effects.
func Validate(plain string, h Hashes) (Tier, Permissions, bool) {
	sum := Hash(plain)
	switch {
	case hashEqual(sum, h.Admin):
		return TierAdmin, tierPermissions[TierAdmin], true
	case hashEqual(sum, h.Scorer):
		return TierScorer, tierPermissions[TierScorer], true
	case hashEqual(sum, h.Viewer):
		return TierViewer, tierPermissions[TierViewer], true
	}
	return "", Permissions{}, false
}
