package core

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestLogErrorKeepsPercentInArguments(t *testing.T) {
	var buf bytes.Buffer
	l := getLogger()
	l.SetOutput(&buf)
	defer l.SetOutput(os.Stderr)

	err := errors.New(`open "100%d.toml": no such file`)
	LogError("settings watcher: %s", err)

	out := buf.String()
	if !strings.Contains(out, `100%d.toml`) {
		t.Errorf("error text mangled: %q", out)
	}
	if strings.Contains(out, "%!") {
		t.Errorf("bad format verb in output: %q", out)
	}
}
