package progress

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/qorgraph/internal/ctxlog"
)

const defaultDialTimeout = 10 * time.Second

// SocketIOConfig locates the socket.io server events are emitted to.
type SocketIOConfig struct {
	URL       string
	Namespace string
	Event     string
	Timeout   time.Duration
}

// SocketIO emits every event it receives on a connected socket.io client.
type SocketIO struct {
	io    *socket.Socket
	event string
}

// DialSocketIO connects to the configured server and waits for the
// connection to be acknowledged.
func DialSocketIO(ctx context.Context, cfg SocketIOConfig) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("reporter", "socketio", "url", cfg.URL)

	if cfg.Event == "" {
		return nil, errors.New("socket.io progress event name is empty")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse progress URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("progress URL %q must be absolute", cfg.URL)
	}

	opts := socket.DefaultOptions()
	if parsed.Path != "" {
		opts.SetPath(parsed.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), opts)
	io := manager.Socket(cfg.Namespace, opts)

	done := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		select {
		case done <- nil:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connection refused")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case done <- err:
		default:
		}
	})

	io.Connect()

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-dialCtx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("timed out connecting to progress server %s", cfg.URL)
	case err := <-done:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("failed to connect to progress server %s: %w", cfg.URL, err)
		}
	}

	logger.Info("Connected to progress server.", "namespace", cfg.Namespace, "sid", io.Id())
	return &SocketIO{io: io, event: cfg.Event}, nil
}

func (s *SocketIO) Report(_ context.Context, ev Event) {
	s.io.Emit(s.event, ev)
}

func (s *SocketIO) Close() {
	s.io.Disconnect()
}
