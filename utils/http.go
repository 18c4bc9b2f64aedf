// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for judge API calls. The judge answers in
// well under a second normally; 15s covers its slow catalog endpoint.
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
