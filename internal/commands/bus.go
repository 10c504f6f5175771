package commands

import (
	"context"
	"fmt"
	"sync"

	parley_errors "parley-chat/pkg/errors"
)

// Bus validates a command, runs it through the proxy chain and dispatches it
// to the handler registered for its type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	proxies  *ProxyChain
}

func NewBus(proxies ...Proxy) *Bus {
	return &Bus{
		handlers: make(map[string]Handler),
		proxies:  NewProxyChain(proxies...),
	}
}

func (b *Bus) Register(commandType string, handler Handler) {
	b.mu.Lock()
	b.handlers[commandType] = handler
	b.mu.Unlock()
}

func (b *Bus) Execute(ctx context.Context, cmd Command) (Result, error) {
	b.mu.RLock()
	h, ok := b.handlers[cmd.CommandType()]
	b.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrHandlerNotFound, cmd.CommandType())
	}
	if err := cmd.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}
	if err := b.proxies.Authorize(ctx, cmd); err != nil {
		return Result{}, err
	}
	return h.Handle(ctx, cmd)
}
