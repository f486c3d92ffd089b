package scheduler

import (
	"reflect"
	"sync"
)

// TypeResolver maps a qualified "{namespace}.{entrypoint}" name to a Go
// type. It is purely functional from the engine's point of view: no
// caching obligations, no side effects.
type TypeResolver interface {
	FindTypeByName(qualifiedName string) (reflect.Type, bool)
}

// StaticTypeResolver is a ready-to-use TypeResolver backed by a
// registration map, for callers who would otherwise have to write their
// own trivial implementation.
type StaticTypeResolver struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewStaticTypeResolver returns an empty StaticTypeResolver.
func NewStaticTypeResolver() *StaticTypeResolver {
	return &StaticTypeResolver{types: map[string]reflect.Type{}}
}

// Register associates qualifiedName with the type of sample. sample should
// be a zero value of the handler type (typically a pointer), e.g.
// resolver.Register("jobs.SendEmail", (*SendEmail)(nil)).
func (r *StaticTypeResolver) Register(qualifiedName string, sample any) {
	t := reflect.TypeOf(sample)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	r.types[qualifiedName] = t
	r.mu.Unlock()
}

// FindTypeByName implements TypeResolver.
func (r *StaticTypeResolver) FindTypeByName(qualifiedName string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[qualifiedName]
	return t, ok
}

// HandlerRegistry resolves a HandlerReference to an executable Handler,
// caching resolutions for the process lifetime. A miss (unknown type, or a
// type that does not implement Handler) is reported by returning
// (nil, false) — never an error — so callers mark the attempt unsuccessful
// instead of raising.
type HandlerRegistry struct {
	resolver TypeResolver
	mu       sync.RWMutex
	cache    map[string]Handler
}

// NewHandlerRegistry returns a HandlerRegistry backed by resolver.
func NewHandlerRegistry(resolver TypeResolver) *HandlerRegistry {
	return &HandlerRegistry{
		resolver: resolver,
		cache:    map[string]Handler{},
	}
}

// Resolve implements the HandlerRegistry contract of spec §4.2. The cache
// key includes the instance payload, so two references to the same type
// with different payloads never alias.
func (r *HandlerRegistry) Resolve(ref HandlerReference) (Handler, bool) {
	key := ref.cacheKey()

	r.mu.RLock()
	handler, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return handler, true
	}

	t, ok := r.resolver.FindTypeByName(ref.TypeName())
	if !ok || t == nil {
		return nil, false
	}

	instance := reflect.New(t).Interface()

	handler, ok = instance.(Handler)
	if !ok {
		return nil, false
	}

	if ref.Payload != nil {
		if receiver, ok := instance.(PayloadReceiver); ok {
			if err := receiver.SetPayload(ref.Payload); err != nil {
				return nil, false
			}
		}
	}

	r.mu.Lock()
	// Idempotent insert: if another caller resolved the same key
	// concurrently, last writer wins — both instances are equivalent.
	r.cache[key] = handler
	r.mu.Unlock()

	return handler, true
}
