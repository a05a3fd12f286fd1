package automaton

import "errors"

// Sentinel errors returned by this package. Callers should match them with
// errors.Is, as most return sites wrap them with additional detail.
var (
	// ErrInvalidParameter indicates a caller-supplied value that is outside
	// the accepted range, such as a non-positive order or a negative length.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientData indicates that the filtered training text was too
	// short to observe even a single transition at the requested order.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrMalformedModel indicates that a deserialized or hand-built model
	// failed structural validation.
	ErrMalformedModel = errors.New("malformed model")

	// ErrUnknownContext indicates that a walk could not begin because the
	// model has no transitions for its designated start context.
	ErrUnknownContext = errors.New("unknown context")
)
