package logging

import "testing"

func TestSetVerboseToggle(t *testing.T) {
	SetVerbose(true)
	if !Verbose() {
		t.Error("Verbose() = false after SetVerbose(true)")
	}
	SetVerbose(false)
	if Verbose() {
		t.Error("Verbose() = true after SetVerbose(false)")
	}
}

func TestLogHelpersDoNotPanic(t *testing.T) {
	Info("starting")
	Infof("tag=%s", "v1.0.0")
	Warn("stale lock")
	Warnf("stale lock for %s", "myapp")
	Error("promotion failed")
	Errorf("promotion failed: %v", "target exists")

	SetVerbose(false)
	Debug("suppressed")
	Debugf("suppressed %d", 1)

	SetVerbose(true)
	defer SetVerbose(false)
	Debug("emitted")
	Debugf("emitted %d", 1)
}
