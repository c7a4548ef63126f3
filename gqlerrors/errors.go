// Package gqlerrors defines the error kinds and list type shared by every
// stage of the stitching engine, from merge-time validation through
// delegated field resolution.
package gqlerrors

import (
	"strings"

	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Kind identifies which stage of the engine produced an error, per §7 of
// the specification.
type Kind string

const (
	MergeConflict           Kind = "MERGE_CONFLICT"
	SDLParseError           Kind = "SDL_PARSE_ERROR"
	DanglingExtension       Kind = "DANGLING_EXTENSION"
	MissingLinkResolver     Kind = "MISSING_LINK_RESOLVER"
	DelegationTargetMissing Kind = "DELEGATION_TARGET_MISSING"
	UpstreamExecutionError  Kind = "UPSTREAM_EXECUTION_ERROR"
	VariableCoercionError   Kind = "VARIABLE_COERCION_ERROR"

	UndefinedError Kind = "UNDEFINED_ERROR"
)

// Location mirrors a gqlparser source location.
type Location struct {
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

// Error is a single GraphQL-shaped error carrying the kind that produced it.
type Error struct {
	Kind      Kind                   `json:"-"`
	Message   string                 `json:"message"`
	Locations []Location             `json:"locations,omitempty"`
	Path      []interface{}          `json:"path,omitempty"`
	Extra     map[string]interface{} `json:"extensions,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// New returns an *Error of the given kind wrapping err's message.
func New(kind Kind, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: err.Error(),
		Extra: map[string]interface{}{
			"code": string(kind),
		},
	}
}

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmtErr(format, args...))
}

// WithPathPrefix returns a copy of e with prefix prepended to its path, used
// by the delegation engine to preserve the caller's field path (§4.4 step 7)
// when folding an upstream error into the outer response.
func (e *Error) WithPathPrefix(prefix []interface{}) *Error {
	cp := *e
	cp.Path = append(append([]interface{}{}, prefix...), e.Path...)
	return &cp
}

// ErrorList is an ordered collection of *Error, itself satisfying error.
type ErrorList []*Error

func (list ErrorList) Error() string {
	acc := make([]string, len(list))
	for i, err := range list {
		acc[i] = err.Error()
	}
	return strings.Join(acc, ". ")
}

// WithPathPrefix prepends prefix to every error's path.
func (list ErrorList) WithPathPrefix(prefix []interface{}) ErrorList {
	out := make(ErrorList, len(list))
	for i, e := range list {
		out[i] = e.WithPathPrefix(prefix)
	}
	return out
}

// ExtendErrorList appends err, formatted, onto errs.
func ExtendErrorList(errs ErrorList, err error) ErrorList {
	return append(errs, FormatError(err)...)
}

// FormatError normalizes any error value (including gqlparser's own error
// types) into an ErrorList.
func FormatError(err error) ErrorList {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case ErrorList:
		var list ErrorList
		for _, innerErr := range e {
			list = append(list, FormatError(innerErr)...)
		}
		return list
	case *Error:
		return ErrorList{e}
	case *gqlerror.Error:
		var locations []Location
		for _, loc := range e.Locations {
			locations = append(locations, Location(loc))
		}
		var path []string
		if e.Path.String() != "" {
			path = strings.Split(e.Path.String(), ".")
		}
		ext := e.Extensions
		if len(ext) == 0 {
			ext = map[string]interface{}{"code": string(UndefinedError)}
		}
		return ErrorList{&Error{
			Kind:      UpstreamExecutionError,
			Message:   e.Message,
			Locations: locations,
			Path:      lo.Map(path, func(el string, _ int) interface{} { return el }),
			Extra:     ext,
		}}
	case gqlerror.List:
		var list ErrorList
		for _, innerErr := range e {
			list = append(list, FormatError(innerErr)...)
		}
		return list
	default:
		return ErrorList{New(UndefinedError, err)}
	}
}
