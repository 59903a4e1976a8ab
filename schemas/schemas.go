package schemas

const (
	ProfileURL        string = "https://schemas.attestry.dev/profile.json"
	ResearchObjectURL string = "https://schemas.attestry.dev/research-object.json"
	ClaimURL          string = "https://schemas.attestry.dev/claim.json"
	AttestationURL    string = "https://schemas.attestry.dev/attestation.json"
)

// Profile is the per-account singleton. Re-creation updates it in place.
type Profile struct {
	DisplayName string `json:"displayName"`
	ORCID       string `json:"orcid"`
}

type ResearchObject struct {
	Title    string `json:"title"`
	Manifest string `json:"manifest"`
}

type Claim struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Badge       *string `json:"badge,omitempty"`
}

// Attestation binds a claim revision to a target revision. The pinned
// references never follow later edits of either side.
type Attestation struct {
	TargetID      string `json:"targetID"`
	TargetVersion string `json:"targetVersion"`
	ClaimID       string `json:"claimID"`
	ClaimVersion  string `json:"claimVersion"`
	Revoked       bool   `json:"revoked"`
}
