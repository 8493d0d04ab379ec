package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := New(KindEmptyDownload, "download", nil)
	wrapped := fmt.Errorf("lora: %w", base)
	if got := KindOf(wrapped); got != KindEmptyDownload {
		t.Fatalf("KindOf=%v want %v", got, KindEmptyDownload)
	}
	if !stderrors.Is(wrapped, &Error{Kind: KindEmptyDownload}) {
		t.Fatalf("errors.Is should match on kind")
	}
	if stderrors.Is(wrapped, &Error{Kind: KindIO}) {
		t.Fatalf("errors.Is matched a different kind")
	}
	if KindOf(stderrors.New("plain")) != KindUnknown {
		t.Fatalf("plain errors have no kind")
	}
}

func TestHTTPStatusCarried(t *testing.T) {
	err := fmt.Errorf("x: %w", HTTPStatus("GET", 404, "404 Not Found"))
	if StatusOf(err) != 404 {
		t.Fatalf("status=%d", StatusOf(err))
	}
	if !stderrors.Is(err, &Error{Kind: KindHTTP, Status: 404}) {
		t.Fatalf("expected match on kind+status")
	}
	if stderrors.Is(err, &Error{Kind: KindHTTP, Status: 500}) {
		t.Fatalf("unexpected match on different status")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("message missing status: %q", err.Error())
	}
}

func TestFriendlyPerKind(t *testing.T) {
	cases := map[Kind]string{
		KindInvalidURL:    "not a valid",
		KindPathEscape:    "outside the allowed",
		KindEmptyDownload: "empty file",
		KindChecksum:      "SHA-256",
		KindCancelled:     "cancelled",
	}
	for k, want := range cases {
		fe := Friendly(New(k, "op", nil))
		if !strings.Contains(fe.Message, want) {
			t.Fatalf("kind %v: message %q lacks %q", k, fe.Message, want)
		}
	}
	fe := Friendly(HTTPStatus("GET", 401, ""))
	if !strings.Contains(fe.Suggestion, "HF_TOKEN") {
		t.Fatalf("401 should suggest a token: %q", fe.Suggestion)
	}
	fe = Friendly(New(KindNetwork, "GET", stderrors.New("dial tcp: connection refused")))
	if fe.Message != "Server refused connection" {
		t.Fatalf("network message: %q", fe.Message)
	}
	if Friendly(nil) != nil {
		t.Fatalf("nil in, nil out")
	}
}
