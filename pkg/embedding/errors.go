package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrNotNewer is returned when a tracked script is re-embedded without a
	// strictly newer timestamp. Nothing changes.
	ErrNotNewer = errors.New("script is not newer than the embedded version")

	// ErrReservedName is returned when a script would shadow a native tool
	ErrReservedName = errors.New("tool name is reserved by a native tool")
)

// Stages at which an embed can fail.
const (
	StageFetch    = "fetch"
	StageName     = "name"
	StageCompile  = "compile"
	StageRegister = "register"
)

// EmbedError reports a failed embed of one script.
type EmbedError struct {
	Name  string
	Stage string
	Err   error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embed %s: %s: %v", e.Name, e.Stage, e.Err)
}

func (e *EmbedError) Unwrap() error {
	return e.Err
}
