package authclient

import "net/http"

// ResultKind tags the outcome of a request at the transport boundary.
type ResultKind int

const (
	// ResultOK carries a 2xx response whose body the caller must close.
	ResultOK ResultKind = iota
	// ResultAuthExpired means the server rejected the bearer token with 401.
	ResultAuthExpired
	// ResultError is any other failure: transport errors and non-401 statuses.
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultAuthExpired:
		return "auth_expired"
	default:
		return "error"
	}
}

// Result is what a single attempt produced. Err holds the decoded
// *apperrors.AppError for status failures.
type Result struct {
	Kind     ResultKind
	Response *http.Response
	Err      error
}

func okResult(resp *http.Response) Result {
	return Result{Kind: ResultOK, Response: resp}
}

func errorResult(err error) Result {
	return Result{Kind: ResultError, Err: err}
}
