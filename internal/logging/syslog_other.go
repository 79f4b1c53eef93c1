//go:build windows || plan9

package logging

import "errors"

type syslogWriter interface {
	PriorityWriter
	Close() error
}

func dialSyslog(tag string) (syslogWriter, error) {
	return nil, errors.New("syslog is not available on this platform")
}
