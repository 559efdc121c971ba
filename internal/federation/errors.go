package federation

import "errors"

var (
	ErrMissingProperty        = errors.New("missing property")
	ErrUnprocessablePropValue = errors.New("unprocessable property value")
	ErrUnsupported            = errors.New("unsupported")
	ErrNotFoundIRI            = errors.New("IRI not found")
	// ErrVerification covers bad signatures, digest mismatches and objects claiming another domain's identity.
	ErrVerification = errors.New("verification failed")
)
