package redis

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-interview/core/persistence/redis"

var logger = otelslog.NewLogger(scopeName)
