// Package log provides the leveled logger used across researchchat.
//
// Components accept a Logger and fall back to the package-level default,
// which is a golog-backed logger at info level writing to stderr.
//
//	logger := log.New(log.LevelDebug, os.Stderr)
//	log.SetDefaultLogger(logger)
//
//	rlog := log.Named(logger, "research")
//	rlog.Info("phase %d finished", 2)
//
// Levels, in order of increasing severity: LevelDebug, LevelInfo, LevelWarn,
// LevelError. LevelNone disables output. NoOpLogger discards everything and is
// what tests usually pass.
package log
