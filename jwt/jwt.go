package jwt

type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

type Claims struct {
	Issuer         string `json:"iss,omitempty"` // account AID
	Subject        string `json:"sub,omitempty"`
	Audience       string `json:"aud,omitempty"`
	ExpirationTime string `json:"exp,omitempty"`
	IssuedAt       string `json:"iat,omitempty"`
	JWTID          string `json:"jti,omitempty"`
}
