// Package terminal implements the interactive login prompt.
//
// Prompt.Run asks for a username and a password, the password without
// echo when stdin is a terminal, and returns an Outcome. An empty username,
// end of input or a cancelled context all end the prompt with
// StatusCancelled, which is not an error.
package terminal
