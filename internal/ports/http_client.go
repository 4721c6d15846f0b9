package ports

import "net/http"

// HTTPClient is satisfied by *http.Client. Webhook actors and the transport
// client take it so tests can inject canned responses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
