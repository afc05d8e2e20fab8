// Package log provides the request-scoped structured logger used across
// the task engine. Grounded on livepeer-catalyst-api's log package: a
// logfmt logger (go-kit/log) keyed by request ID, with a short-TTL cache
// of per-request loggers so repeated AddContext calls accumulate fields
// without re-building the base logger each time.
package log

import (
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"
	cache "github.com/patrickmn/go-cache"
)

var loggerCache *cache.Cache

const defaultLoggerCacheExpiry = 6 * time.Hour

// logDestination is overridable in tests.
var logDestination io.Writer = os.Stderr

func init() {
	loggerCache = cache.New(defaultLoggerCacheExpiry, 10*time.Minute)
}

// AddContext permanently attaches keyvals to the logger for requestID, so
// every subsequent Log/LogError call for that ID includes them.
func AddContext(requestID string, keyvals ...interface{}) {
	logger := kitlog.With(getLogger(requestID), redactKeyvals(keyvals...)...)
	if err := loggerCache.Replace(requestID, logger, defaultLoggerCacheExpiry); err != nil {
		_ = logger.Log("msg", "error replacing logger in cache: "+err.Error())
	}
}

func Log(requestID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(requestID), "msg", message).Log(redactKeyvals(keyvals...)...)
}

// LogNoRequestID logs without request-scoped context. Use sparingly, and
// put as much context as possible directly into the message.
func LogNoRequestID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogError(requestID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(requestID), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(redactKeyvals(keyvals...)...)
}

func getLogger(requestID string) kitlog.Logger {
	if logger, found := loggerCache.Get(requestID); found {
		return logger.(kitlog.Logger)
	}

	l := kitlog.With(newLogger(), "request_id", requestID)
	if err := loggerCache.Add(requestID, l, defaultLoggerCacheExpiry); err != nil {
		_ = l.Log("msg", "error adding logger to cache", "request_id", requestID, "err", err.Error())
	}
	return l
}

func newLogger() kitlog.Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(logDestination))
	return kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
}

// redactKeyvals passes every value through RedactURL, so that source URLs
// (which may embed signed query params for uploads) never land in plain
// logs.
func redactKeyvals(keyvals ...interface{}) []interface{} {
	var res []interface{}
	for i := range keyvals {
		if i%2 == 1 {
			k, v := keyvals[i-1], keyvals[i]
			res = append(res, k)
			switch s := v.(type) {
			case string:
				res = append(res, RedactURL(s))
			case url.URL:
				res = append(res, s.Redacted())
			case *url.URL:
				if s != nil {
					res = append(res, s.Redacted())
				}
			default:
				res = append(res, v)
			}
		}
	}
	return res
}

// RedactURL strips query parameters from anything that parses as a URL,
// so API keys and signed upload URLs don't leak into logs.
func RedactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return s
	}
	if u.RawQuery == "" {
		return s
	}
	u.RawQuery = "REDACTED"
	return u.String()
}

// RedactSecret keeps only the first few characters of a token, for
// logging which credential was used without exposing it.
func RedactSecret(s string) string {
	if len(s) <= 6 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
