//go:build !windows && !plan9

package logging

import "log/syslog"

type syslogWriter interface {
	PriorityWriter
	Close() error
}

func dialSyslog(tag string) (syslogWriter, error) {
	return syslog.New(syslog.LOG_USER|syslog.LOG_INFO, tag)
}
