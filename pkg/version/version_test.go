package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestCurrent(t *testing.T) {
	v := Current()
	if !strings.HasPrefix(v, runtime.GOOS+"|"+AppName+"|") {
		t.Fatalf("unexpected version string: %q", v)
	}

	if Tag() == "" {
		t.Fatal("empty version tag")
	}
}
