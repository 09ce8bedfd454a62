package mapretry

import "context"

// Name is a type alias for engine names.
// Names appear in span tags, hook events and log fields, so storing them
// as constants keeps them consistent across a codebase.
//
// Example:
//
//	const FetchPagesName mapretry.Name = "fetch-pages"
type Name = string

// Func is the fallible transformation applied to every item of a source.
//
// A Func must be safe to call again with a duplicate of the same input:
// failed items are handed back to it on retry. The returned error is
// treated as opaque and surfaces unchanged in Result.Err.
type Func[In, Out any] func(context.Context, In) (Out, error)

// Result is the outcome of the final attempt made for one source item.
//
// Exactly one Result is produced per item pulled from the source. When the
// item succeeded, Err is nil and Value holds the output. When the item
// exhausted its retry budget, Err holds the error of its last attempt.
type Result[In, Out any] struct {
	Input    In    // The item as pulled from the source
	Value    Out   // Output of the successful attempt
	Err      error // Error of the last attempt, nil on success
	Index    int   // Zero-based position of the item in the source
	Attempts int   // Number of times the item was passed to the Func
}

// Ok reports whether the result is a success.
func (r Result[In, Out]) Ok() bool {
	return r.Err == nil
}

// Cloner is an interface for types that can create deep copies of themselves.
//
// The engine keeps one copy of each failed item in its retry queue and
// hands a fresh duplicate to the Func on every attempt. Plain values are
// duplicated by assignment; types holding pointers, slices or maps should
// implement Cloner so an attempt cannot mutate the queued copy.
//
//	type Request struct {
//	    URL     string
//	    Headers map[string]string
//	}
//
//	func (r Request) Clone() Request {
//	    headers := make(map[string]string, len(r.Headers))
//	    for k, v := range r.Headers {
//	        headers[k] = v
//	    }
//	    return Request{URL: r.URL, Headers: headers}
//	}
type Cloner[T any] interface {
	Clone() T
}

// duplicate returns a copy of v suitable for a single attempt.
func duplicate[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}

// invoke calls fn, converting a panic into a *PanicError failure.
func invoke[In, Out any](ctx context.Context, name Name, fn Func[In, Out], input In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero Out
			out = zero
			err = &PanicError{Name: name, Value: r}
		}
	}()
	return fn(ctx, input)
}
