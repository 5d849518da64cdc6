package relayerr

import (
	"errors"
	"testing"
)

func TestNewWrapsAndUnwraps(t *testing.T) {
	base := errors.New("boom")
	wrapped := New(KindTransientIO, base)
	if !errors.Is(wrapped, base) {
		t.Fatal("expected wrapped error to unwrap to base")
	}
	if !As(wrapped, KindTransientIO) {
		t.Fatal("expected As to match KindTransientIO")
	}
	if As(wrapped, KindConflict) {
		t.Fatal("expected As to not match a different kind")
	}
}

func TestNewNilErrorReturnsNil(t *testing.T) {
	if New(KindTransientIO, nil) != nil {
		t.Fatal("expected nil error to stay nil")
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
		ok     bool
	}{
		{401, KindAuthRejection, true},
		{403, KindAuthRejection, true},
		{404, KindNotFound, true},
		{409, KindConflict, true},
		{429, KindRateLimit, true},
		{503, KindTransientIO, true},
		{200, 0, false},
	}
	for _, c := range cases {
		got, ok := ClassifyHTTPStatus(c.status)
		if ok != c.ok {
			t.Fatalf("status %d: expected ok=%v, got %v", c.status, c.ok, ok)
		}
		if ok && got != c.want {
			t.Fatalf("status %d: expected %v, got %v", c.status, c.want, got)
		}
	}
}

func TestIsSQLiteBusyError(t *testing.T) {
	if !IsSQLiteBusyError(errors.New("disk I/O error: SQLITE_BUSY")) {
		t.Fatal("expected SQLITE_BUSY to be detected")
	}
	if IsSQLiteBusyError(errors.New("some other error")) {
		t.Fatal("expected unrelated error to not match")
	}
	if IsSQLiteBusyError(nil) {
		t.Fatal("expected nil to not match")
	}
}

func TestIsSQLiteLockedError(t *testing.T) {
	if !IsSQLiteLockedError(errors.New("database is locked")) {
		t.Fatal("expected locked error to be detected")
	}
}

func TestIsSQLiteConflictError(t *testing.T) {
	if !IsSQLiteConflictError(errors.New("SQLITE_BUSY")) {
		t.Fatal("expected busy to count as conflict")
	}
	if !IsSQLiteConflictError(errors.New("database is locked")) {
		t.Fatal("expected locked to count as conflict")
	}
	if IsSQLiteConflictError(errors.New("unrelated")) {
		t.Fatal("expected unrelated error to not count as conflict")
	}
}
