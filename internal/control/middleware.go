package control

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "fisherbot/pkg/logx"
)

// HandlerFunc handles one command and returns the reply text.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (string, error) {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (reply string, err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (string, error) {
			start := time.Now()
			reply, err := next(ctx, req)
			d := time.Since(start)
			fields := []logx.Field{logx.Strings("args", req.Args), logx.Duration("dur", d)}
			switch {
			case err != nil:
				req.Log.Warn("command failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				req.Log.Info("command ok", fields...)
			default:
				req.Log.Debug("command ok", fields...)
			}
			return reply, err
		}
	}
}
