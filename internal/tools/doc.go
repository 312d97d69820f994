// Package tools holds the command builders for the third-party
// programs the generated scripts invoke. Each builder is a free
// function that takes the Job it writes to explicitly, appends command
// fragments through the Job's public API, and returns the paths of the
// files it produces in the Job's working directory. The generator
// treats every command as an opaque shell fragment reading declared
// inputs and producing declared outputs; nothing here is executed.
package tools
