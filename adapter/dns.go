package adapter

import (
	"context"
	"net"

	"github.com/joeycumines/stackloop"
)

// ResolveHost awaits the system resolver's answer for host, deep-copying
// the resulting address strings into the reactor's arena before returning
// them (net.Resolver's own internal buffers are not guaranteed stable past
// the call that produced them).
func ResolveHost(ctx context.Context, co *stackloop.Coroutine, host string) ([]string, error) {
	arena := co.Reactor().Arena()

	return Run[[]string](co, func(complete func(status int, value []string, err error)) {
		go func() {
			addrs, err := net.DefaultResolver.LookupHost(ctx, host)
			if err != nil {
				complete(1, nil, err)
				return
			}
			complete(0, stackloop.CopySlice(arena, addrs), nil)
		}()
	})
}
