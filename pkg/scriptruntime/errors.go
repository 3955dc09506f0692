package scriptruntime

import "errors"

var (
	// ErrSyntax is returned when script source does not parse
	ErrSyntax = errors.New("script syntax error")

	// ErrEval is returned when the interpreter rejects or fails to run script source
	ErrEval = errors.New("script evaluation failed")

	// ErrCallableNotFound is returned when the script does not declare the expected function
	ErrCallableNotFound = errors.New("callable not found in script")

	// ErrUnsupportedSignature is returned for callables the runtime cannot marshal arguments into
	ErrUnsupportedSignature = errors.New("unsupported callable signature")

	// ErrNotBound is returned when a name is not bound in the runtime
	ErrNotBound = errors.New("name not bound in runtime")

	// ErrArgument is returned when call arguments do not fit the callable's parameters
	ErrArgument = errors.New("argument mismatch")

	// ErrCallPanicked is returned when the called script panics
	ErrCallPanicked = errors.New("script panicked")
)
