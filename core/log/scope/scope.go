// Package scope implements the ambient stack of property frames that is
// merged into every log record emitted while the frames are active.
//
// A Stack travels in a context.Context. Frames are pushed by the logger for
// the duration of a single call, or by callers for a whole unit of work, and
// are removed by identity through their Handle.
package scope

import (
	"context"
	"sync"

	"github.com/ebogdum/cleanlog/core/log/value"
	"github.com/ebogdum/cleanlog/metrics"
)

// contextKey is the context key type for the scope stack
type contextKey string

const stackKey contextKey = "log_scope_stack"

// Frame is one pushed property set.
type Frame struct {
	props  *value.Object
	dotted bool
}

// Properties returns the frame's properties. They must not be modified.
func (f *Frame) Properties() *value.Object { return f.props }

// Dotted reports whether nested objects in the frame are merged as
// dot-joined keys.
func (f *Frame) Dotted() bool { return f.dotted }

// Stack is an ordered list of live frames, outer first. A Stack may have a
// parent whose live frames precede its own. It is safe for concurrent use.
type Stack struct {
	mu     sync.Mutex
	parent *Stack
	frames []*Frame
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push appends a frame holding props and returns the handle that removes it.
// props must not be modified after Push. Pushing onto a nil stack is a no-op
// that returns a nil handle.
func (s *Stack) Push(props *value.Object) *Handle {
	return s.push(&Frame{props: props})
}

// PushDotted is like Push, but nested objects in props are merged into the
// context as dot-joined keys ("outer.inner") so inner scopes can override
// single leaves.
func (s *Stack) PushDotted(props *value.Object) *Handle {
	return s.push(&Frame{props: props, dotted: true})
}

func (s *Stack) push(f *Frame) *Handle {
	if s == nil {
		return nil
	}
	if f.props == nil {
		f.props = value.NewObject()
	}

	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()

	metrics.ScopeFramesActive.Inc()
	return &Handle{stack: s, frame: f}
}

// remove deletes f by identity, keeping the order of the remaining frames.
func (s *Stack) remove(f *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cur := range s.frames {
		if cur == f {
			s.frames = append(s.frames[:i:i], s.frames[i+1:]...)
			return true
		}
	}
	return false
}

// Frames returns a snapshot of the live frames, outer first. Frames of
// parent stacks come before the stack's own.
func (s *Stack) Frames() []*Frame {
	if s == nil {
		return nil
	}
	out := s.parent.Frames()

	s.mu.Lock()
	out = append(out, s.frames...)
	s.mu.Unlock()
	return out
}

// Len returns the number of frames pushed onto s itself, excluding parents.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Merged returns the merged properties of all live frames.
func (s *Stack) Merged() *value.Object {
	return Merge(s.Frames())
}

// Handle releases a pushed frame. A nil Handle is valid and does nothing.
type Handle struct {
	stack *Stack
	frame *Frame
	once  sync.Once
}

// Release removes the frame from its stack. It is safe to call more than
// once and in any order relative to other handles.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.stack.remove(h.frame) {
			metrics.ScopeFramesActive.Dec()
		}
	})
}

// Merge combines frames outer to inner. Keys of later frames overwrite
// same-named keys of earlier ones; a key keeps the position where it first
// appeared. Dotted frames are flattened to dot-joined keys before merging.
func Merge(frames []*Frame) *value.Object {
	out := value.NewObject()
	for _, f := range frames {
		if f.dotted {
			setDotted(out, "", f.props)
			continue
		}
		f.props.Range(func(k string, v value.Value) bool {
			out.Set(k, v)
			return true
		})
	}
	return out
}

func setDotted(out *value.Object, prefix string, obj *value.Object) {
	obj.Range(func(k string, v value.Value) bool {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(*value.Object); ok && nested.Len() > 0 {
			setDotted(out, key, nested)
			return true
		}
		out.Set(key, v)
		return true
	})
}

// WithStack returns a copy of ctx carrying s.
func WithStack(ctx context.Context, s *Stack) context.Context {
	return context.WithValue(ctx, stackKey, s)
}

// FromContext returns the stack carried by ctx, or nil.
func FromContext(ctx context.Context) *Stack {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(stackKey).(*Stack)
	return s
}

// Ensure returns ctx and its stack, installing a new stack if ctx has none.
func Ensure(ctx context.Context) (context.Context, *Stack) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s := FromContext(ctx); s != nil {
		return ctx, s
	}
	s := NewStack()
	return WithStack(ctx, s), s
}

// Fork returns a context with a child stack for work that runs concurrently
// with the caller, such as a spawned goroutine. The child sees the live
// frames of ctx's stack; frames pushed onto the child are never visible to
// the parent or to sibling forks.
func Fork(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return WithStack(ctx, FromContext(ctx).Child())
}

// Child returns a new stack whose parent is s. Frames pushed onto the child
// are visible only through the child.
func (s *Stack) Child() *Stack {
	return &Stack{parent: s}
}
