package main

import "time"

// RootFlags Flag struct to decouple cobra from logic for testing.
// Only ConfigPath, Once and Plain are read directly; the rest reach the
// program through config.Load, which binds them by flag name.
type RootFlags struct {
	ConfigPath  string
	Jobs        int
	LogLevel    string
	QueueDir    string
	Shell       string
	Interval    time.Duration
	MetricsFile string
	Listen      string
	LogDir      string
	Env         []string
	Once        bool
	Plain       bool
}
