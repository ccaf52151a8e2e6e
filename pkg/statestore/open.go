package statestore

import (
	"context"
	"fmt"
	"strings"
)

// Open creates a store from a spec string:
//
//	memory
//	file:<path>
//	bolt:<path>
//	postgres:<dsn>
func Open(ctx context.Context, spec string) (Store, error) {
	kind, arg, _ := strings.Cut(spec, ":")
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		if arg == "" {
			return nil, fmt.Errorf("file store needs a path")
		}
		return NewFileStore(arg)
	case "bolt":
		if arg == "" {
			return nil, fmt.Errorf("bolt store needs a path")
		}
		return OpenBoltStore(arg)
	case "postgres", "postgresql":
		if arg == "" {
			return nil, fmt.Errorf("postgres store needs a DSN")
		}
		// Keep the scheme when the DSN is a URL.
		if strings.HasPrefix(arg, "//") {
			arg = kind + ":" + arg
		}
		return NewPostgresStore(ctx, arg)
	}
	return nil, fmt.Errorf("unknown state store %q", kind)
}
