package application

import "strings"

type LoginMethod string

const (
	LoginInteractive LoginMethod = "interactive"
	LoginPassword    LoginMethod = "password"
	LoginTokenFile   LoginMethod = "token-file"
)

// LoginCommand selects the sign-in path. An empty command means interactive.
type LoginCommand struct {
	Email     string
	Password  string
	TokenFile string
}

func (c LoginCommand) Method() LoginMethod {
	switch {
	case strings.TrimSpace(c.TokenFile) != "":
		return LoginTokenFile
	case c.Email != "" || c.Password != "":
		return LoginPassword
	default:
		return LoginInteractive
	}
}

type ConnectCommand struct {
	// Gateway authenticates with client credentials instead of the saved session.
	Gateway bool
}
