package core

import "testing"

func TestErrorForReplyCode(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{"not_found", ExitNotFound},
		{"unknown_player", ExitNotFound},
		{"bad_request", ExitUsage},
		{"command_failed", ExitRuntime},
		{"internal", ExitRuntime},
	}

	for _, test := range tests {
		err := ErrorForReplyCode(test.code, "message")
		if err.Code != test.expected {
			t.Fatalf("code %s expected %d got %d", test.code, test.expected, err.Code)
		}
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != ExitOK {
		t.Fatalf("nil error should be ok")
	}
	if ExitCode(&CLIError{Code: ExitNotFound, Msg: "gone"}) != ExitNotFound {
		t.Fatalf("expected cli error code")
	}
}
