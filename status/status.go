// Package status maps HTTP status codes onto outcome bands.
//
// The mapping is total: every integer lands in exactly one band. Codes outside
// the registered 1xx-5xx ranges fall into ServerError so that callers treat
// them as failures.
package status

// Band is the outcome class of an HTTP status code
type Band int

const (
	// Info covers 1xx codes
	Info Band = iota
	// Success covers 2xx codes
	Success
	// Redirect covers 3xx codes
	Redirect
	// ClientError covers 4xx codes
	ClientError
	// ServerError covers 5xx codes and every code outside 100-599
	ServerError
)

// Classify returns the band for the given status code.
func Classify(code int) Band {
	switch {
	case code >= 100 && code < 200:
		return Info
	case code >= 200 && code < 300:
		return Success
	case code >= 300 && code < 400:
		return Redirect
	case code >= 400 && code < 500:
		return ClientError
	default:
		return ServerError
	}
}

// IsSuccess reports whether the code is not a failure (1xx, 2xx or 3xx)
func IsSuccess(code int) bool {
	return !IsFailure(code)
}

// IsFailure reports whether the code is a client or server error
func IsFailure(code int) bool {
	b := Classify(code)
	return b == ClientError || b == ServerError
}

func (b Band) String() string {
	switch b {
	case Info:
		return "info"
	case Success:
		return "success"
	case Redirect:
		return "redirect"
	case ClientError:
		return "client_error"
	default:
		return "server_error"
	}
}
