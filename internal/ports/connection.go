package ports

// Connection is the capability set the execution client needs from a live
// session: a current bearer header and resource addressing.
type Connection interface {
	AuthHeader() (name string, value string, err error)
	ResourceURI(parts ...string) string
}
