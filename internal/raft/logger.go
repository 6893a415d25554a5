package raft

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger adapts slog to the etcd raft Logger interface. Raft's own messages
// are grouped under "raft" and tagged with the group and node IDs.
type Logger struct {
	l *slog.Logger
}

func NewRaftLogger(groupID, nodeID uint64) *Logger {
	return &Logger{
		l: slog.Default().With("group_id", groupID, "node_id", nodeID).WithGroup("raft"),
	}
}

func (l *Logger) Debug(v ...any)   { l.l.Debug(fmt.Sprint(v...)) }
func (l *Logger) Info(v ...any)    { l.l.Info(fmt.Sprint(v...)) }
func (l *Logger) Warning(v ...any) { l.l.Warn(fmt.Sprint(v...)) }
func (l *Logger) Error(v ...any)   { l.l.Error(fmt.Sprint(v...)) }

func (l *Logger) Debugf(format string, v ...any)   { l.l.Debug(fmt.Sprintf(format, v...)) }
func (l *Logger) Infof(format string, v ...any)    { l.l.Info(fmt.Sprintf(format, v...)) }
func (l *Logger) Warningf(format string, v ...any) { l.l.Warn(fmt.Sprintf(format, v...)) }
func (l *Logger) Errorf(format string, v ...any)   { l.l.Error(fmt.Sprintf(format, v...)) }

// Fatal and Fatalf must not return; etcd raft relies on that.
func (l *Logger) Fatal(v ...any) {
	l.l.Error(fmt.Sprint(v...))
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, v ...any) {
	l.l.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (l *Logger) Panic(v ...any) {
	msg := fmt.Sprint(v...)
	l.l.Error(msg)
	panic(msg)
}

func (l *Logger) Panicf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	l.l.Error(msg)
	panic(msg)
}
