package toolexecutor

import "errors"

var (
	// ErrUnknownTool is returned when no tool is registered under a name
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMissingArgument is returned when a declared argument is absent from the call parameters
	ErrMissingArgument = errors.New("missing argument")

	// ErrExecutionFailure is returned when a tool call fails or its arguments do not fit
	ErrExecutionFailure = errors.New("tool execution failed")

	// ErrNativeTool is returned when a script tool would replace or remove a native tool
	ErrNativeTool = errors.New("tool name is reserved by a native tool")

	// ErrInvalidTool is returned for tools that cannot be registered
	ErrInvalidTool = errors.New("invalid tool")
)
