package fs

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestChaos_PassesThroughWhenDisabled(t *testing.T) {
	t.Parallel()

	chaosFS := NewChaos(NewReal(), 12345, ChaosConfig{
		ReadFailRate:  1.0,
		WriteFailRate: 1.0,
		LockFailRate:  1.0,
	})
	chaosFS.SetMode(ChaosModePassthrough)

	path := filepath.Join(t.TempDir(), "test.txt")

	if err := chaosFS.WriteFileAtomic(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := chaosFS.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if got, want := string(got), "hello"; got != want {
		t.Fatalf("ReadFile=%q, want %q", got, want)
	}

	if got, want := chaosFS.TotalFaults(), int64(0); got != want {
		t.Fatalf("TotalFaults=%d, want=%d", got, want)
	}
}

func TestChaos_InjectsWriteFaultWithoutTouchingFile(t *testing.T) {
	t.Parallel()

	realFS := NewReal()
	chaosFS := NewChaos(realFS, 1, ChaosConfig{WriteFailRate: 1.0})
	path := filepath.Join(t.TempDir(), "data.json")

	if err := realFS.WriteFileAtomic(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	chaosFS.SetMode(ChaosModeInject)

	err := chaosFS.WriteFileAtomic(path, []byte("replacement"), 0o644)
	if err == nil {
		t.Fatal("expected injected write error")
	}

	if !IsInjected(err) {
		t.Errorf("IsInjected(%v)=false, want true", err)
	}

	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		t.Errorf("err=%T, want *os.PathError", err)
	}

	got, readErr := realFS.ReadFile(path)
	if readErr != nil {
		t.Fatalf("ReadFile: %v", readErr)
	}

	if got, want := string(got), "original"; got != want {
		t.Errorf("content=%q, want=%q", got, want)
	}

	if got, want := chaosFS.Stats().WriteFails, int64(1); got != want {
		t.Errorf("WriteFails=%d, want=%d", got, want)
	}
}

func TestChaos_PartialWriteLeavesPrefixAndFails(t *testing.T) {
	t.Parallel()

	realFS := NewReal()
	chaosFS := NewChaos(realFS, 7, ChaosConfig{PartialWriteRate: 1.0})
	chaosFS.SetMode(ChaosModeInject)

	path := filepath.Join(t.TempDir(), "data.json")
	payload := []byte(`[{"id":1,"name":"clip.mp4"}]`)

	err := chaosFS.WriteFileAtomic(path, payload, 0o644)
	if !errors.Is(err, syscall.EIO) {
		t.Fatalf("err=%v, want EIO", err)
	}

	got, readErr := realFS.ReadFile(path)
	if readErr != nil {
		t.Fatalf("ReadFile: %v", readErr)
	}

	if len(got) == 0 || len(got) >= len(payload) {
		t.Fatalf("len(content)=%d, want a strict non-empty prefix of %d bytes", len(got), len(payload))
	}

	if got, want := string(got), string(payload[:len(got)]); got != want {
		t.Errorf("content=%q, want prefix %q", got, want)
	}
}

func TestChaos_MarkPathIsStickyInStickyOnlyMode(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name      string
		state     PathState
		wantWrite syscall.Errno
		readFails bool
	}{
		{name: "read-only", state: PathReadOnly, wantWrite: syscall.EROFS, readFails: false},
		{name: "no space", state: PathNoSpace, wantWrite: syscall.ENOSPC, readFails: false},
		{name: "io error", state: PathIOError, wantWrite: syscall.EIO, readFails: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			realFS := NewReal()
			chaosFS := NewChaos(realFS, 3, DefaultChaosConfig())
			chaosFS.SetMode(ChaosModeStickyOnly)

			path := filepath.Join(t.TempDir(), "data.json")
			if err := realFS.WriteFileAtomic(path, []byte("x"), 0o644); err != nil {
				t.Fatalf("setup: %v", err)
			}

			chaosFS.MarkPath(path, tt.state)

			for range 3 {
				err := chaosFS.WriteFileAtomic(path, []byte("y"), 0o644)
				if !errors.Is(err, tt.wantWrite) {
					t.Fatalf("write err=%v, want=%v", err, tt.wantWrite)
				}
			}

			_, err := chaosFS.ReadFile(path)
			if got, want := err != nil, tt.readFails; got != want {
				t.Fatalf("read failed=%v, want=%v (err=%v)", got, want, err)
			}

			chaosFS.ResetAllPathStates()

			if err := chaosFS.WriteFileAtomic(path, []byte("z"), 0o644); err != nil {
				t.Fatalf("write after reset: %v", err)
			}
		})
	}
}

func TestChaos_LockFaultIsDeadlineExceeded(t *testing.T) {
	t.Parallel()

	chaosFS := NewChaos(NewReal(), 9, ChaosConfig{LockFailRate: 1.0})
	chaosFS.SetMode(ChaosModeInject)

	_, err := chaosFS.Lock(filepath.Join(t.TempDir(), "data.json"))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("err=%v, want=%v", err, os.ErrDeadlineExceeded)
	}

	if !IsInjected(err) {
		t.Errorf("IsInjected(%v)=false, want true", err)
	}
}

func TestIsInjected_FalseForRealErrors(t *testing.T) {
	t.Parallel()

	_, err := NewReal().ReadFile(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected real ENOENT")
	}

	if IsInjected(err) {
		t.Errorf("IsInjected(%v)=true, want false", err)
	}

	if IsInjected(nil) {
		t.Error("IsInjected(nil)=true, want false")
	}
}
