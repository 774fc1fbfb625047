package ports

import "context"

// TokenFile is the persisted form of a native session.
type TokenFile struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type TokenStore interface {
	Load(ctx context.Context, path string) (TokenFile, error)
	Save(ctx context.Context, path string, file TokenFile) error
	Delete(ctx context.Context, path string) error
}
