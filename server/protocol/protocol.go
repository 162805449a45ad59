// Package protocol defines the JSON-lines messages exchanged with the
// modelresolver process over stdin and stdout.
//
// The process first writes a Response listing KnownCommands. Each Request
// is one JSON value; a register Request with BodySize > 0 is followed by a
// second JSON value holding the body as a base64 string. A resolve Request
// may produce any number of progress Responses before its final Response,
// all carrying the Request's ID.
package protocol

import "io"

type Cmd string

const (
	CmdRegister Cmd = "register"
	CmdResolve  Cmd = "resolve"
	CmdRelease  Cmd = "release"
	CmdClose    Cmd = "close"
)

type Request struct {
	ID      int64
	Command Cmd

	// Reference is the model reference to resolve, or the handle to release.
	Reference string `json:",omitempty"`

	// ContentType is the declared type of a registered body.
	ContentType string `json:",omitempty"`

	// BodySize is the number of bytes of a registered body.
	BodySize int64 `json:",omitempty"`

	Body io.Reader `json:"-"`
}

type Response struct {
	ID  int64
	Err string `json:",omitempty"`

	// ErrKind classifies resolve failures.
	ErrKind string `json:",omitempty"`

	KnownCommands []Cmd `json:",omitempty"`

	// Reference is the handle created by register.
	Reference string `json:",omitempty"`

	// URL is the durable URL produced by resolve. Set only on the final
	// Response.
	URL string `json:",omitempty"`

	// Progress and Uploading are set on intermediate resolve Responses.
	Progress  *int  `json:",omitempty"`
	Uploading *bool `json:",omitempty"`

	// Released reports whether release found the handle.
	Released bool `json:",omitempty"`
}

// Final reports whether r ends its request.
func (r *Response) Final() bool {
	return r.Progress == nil && r.Uploading == nil
}
