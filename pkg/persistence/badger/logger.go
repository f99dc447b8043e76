package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLogger routes badger's printf-style logging into zap, tagged with the store path
type badgerLogger struct {
	logger *zap.SugaredLogger
}

var _ badgerdb.Logger = (*badgerLogger)(nil)

func newBadgerLogger(logger *zap.Logger, path string) *badgerLogger {
	return &badgerLogger{logger: logger.Sugar().With("component", "badger", "path", path)}
}

// badger terminates most messages with a newline
func trimMessage(f string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(f, args...), "\n")
}

func (b *badgerLogger) Errorf(f string, args ...interface{}) {
	b.logger.Error(trimMessage(f, args))
}

func (b *badgerLogger) Warningf(f string, args ...interface{}) {
	b.logger.Warn(trimMessage(f, args))
}

func (b *badgerLogger) Infof(f string, args ...interface{}) {
	b.logger.Info(trimMessage(f, args))
}

func (b *badgerLogger) Debugf(f string, args ...interface{}) {
	b.logger.Debug(trimMessage(f, args))
}
