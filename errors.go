package hma

import "fmt"

// Result is the closed taxonomy of outcomes an hma operation can report.
type Result int

const (
	// Ok indicates the operation completed successfully.
	Ok Result = iota
	// Busy indicates non-blocking contention that is not a detected deadlock.
	Busy
	// BusyDeadlock indicates a kernel-reported deadlock, or contention
	// with a live client that cannot be overcome.
	BusyDeadlock
	// CantOpen indicates a stat/open/ftruncate/mmap failure on the HMA file.
	CantOpen
	// NoMem indicates an allocation failure.
	NoMem
	// Error is the catch-all for mapping/initialization failure.
	Error
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case Busy:
		return "busy"
	case BusyDeadlock:
		return "busy-deadlock"
	case CantOpen:
		return "cant-open"
	case NoMem:
		return "no-mem"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Error is the error type returned from every public hma operation.
type Error struct {
	Result Result
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hma: %s: %s: %v", e.Op, e.Result, e.Err)
	}
	return fmt.Sprintf("hma: %s: %s", e.Op, e.Result)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(result Result, op string, err error) *Error {
	return &Error{Result: result, Op: op, Err: err}
}

// ResultOf reports the Result carried by err: Ok if err is nil, and
// Error if err is non-nil but carries no Result.
func ResultOf(err error) Result {
	if err == nil {
		return Ok
	}
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Result
	}
	return Error
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
