// Package logging は charmbracelet/log ベースの構造化ロガーを構築し、context 経由で受け渡します。
package logging

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

type ctxKey struct{}

// New は level ("debug" など) に従って出力を絞るロガーを生成します。
// 未知のレベルは info として扱います。
func New(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02T15:04:05.000Z07:00",
		Level:           lvl,
	})
}

// WithLogger は l を保持した context を返します。
func WithLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext は context に格納されたロガーを返します。存在しない場合は log.Default() です。
func FromContext(ctx context.Context) *log.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*log.Logger); ok {
			return l
		}
	}
	return log.Default()
}
