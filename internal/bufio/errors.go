package bufio

import "golang.org/x/xerrors"

// ErrUnexpectedEOF is returned when the underlying stream closes before a
// requested number of bytes could be assembled.
var ErrUnexpectedEOF = xerrors.New("bufio: unexpected eof reading message")

// ErrMessageTooLarge is returned when Ensure is asked for more bytes than
// the buffer's physical Size, and the caller did not use
// EnsureOrAllocateTemp.
var ErrMessageTooLarge = xerrors.New("bufio: requested length exceeds buffer size")
