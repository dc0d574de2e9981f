package deploy

import (
	"testing"
	"time"
)

func TestTargetAddrAppendsSSHPort(t *testing.T) {
	tgt := Target{Host: "10.0.0.9"}
	if got := tgt.addr(); got != "10.0.0.9:22" {
		t.Errorf("addr() = %q, want 10.0.0.9:22", got)
	}
	if got := (Target{}).addr(); got != "" {
		t.Errorf("addr() with no host = %q, want empty", got)
	}
}

func TestTargetDialTimeoutDefaultsTo30s(t *testing.T) {
	if got := (Target{}).dialTimeout(); got != 30*time.Second {
		t.Errorf("dialTimeout() = %v, want 30s", got)
	}
	tgt := Target{Timeout: 5 * time.Second}
	if got := tgt.dialTimeout(); got != 5*time.Second {
		t.Errorf("dialTimeout() = %v, want 5s", got)
	}
}

func TestAuthMethodRequiresKeyPath(t *testing.T) {
	_, err := (Target{Host: "h"}).authMethod()
	if err == nil {
		t.Error("authMethod() with no key path should error")
	}
}

func TestAuthMethodRejectsMissingKeyFile(t *testing.T) {
	_, err := (Target{Host: "h", KeyPath: "/nonexistent/key"}).authMethod()
	if err == nil {
		t.Error("authMethod() with a missing key file should error")
	}
}

func TestDialRequiresHost(t *testing.T) {
	if _, err := dial(Target{}); err == nil {
		t.Error("dial() with no host should error")
	}
}

func TestShellQuoteWrapsInSingleQuotes(t *testing.T) {
	if got := shellQuote("/tmp/tune.json"); got != "'/tmp/tune.json'" {
		t.Errorf("shellQuote() = %q, want '/tmp/tune.json'", got)
	}
}
