package domain

import "strings"

type Kind string

const (
	KindNative  Kind = "native"
	KindGateway Kind = "gateway"
)

// Credential is replaced wholesale on every refresh and never mutated.
// The zero value is the sentinel published when a refresh fails permanently.
type Credential struct {
	Kind         Kind
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the lifetime reported by the gateway token endpoint, in seconds.
	ExpiresIn int64
}

func (c Credential) IsEmpty() bool {
	return strings.TrimSpace(c.AccessToken) == ""
}

func (c Credential) BearerValue() string {
	return "Bearer " + c.AccessToken
}
