package ssh

import (
	"bytes"
	"sync"
	"testing"
)

func TestSafeBuffer_ConcurrentWrites(t *testing.T) {
	var buf safeBuffer

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if _, err := buf.Write([]byte("x")); err != nil {
					t.Errorf("Write: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := len(buf.Bytes()); got != writers*perWriter {
		t.Errorf("buffer holds %d bytes, want %d", got, writers*perWriter)
	}
}

func TestSafeBuffer_BytesIsACopy(t *testing.T) {
	var buf safeBuffer
	buf.Write([]byte("hello"))

	snapshot := buf.Bytes()
	buf.Write([]byte(" world"))

	if !bytes.Equal(snapshot, []byte("hello")) {
		t.Errorf("snapshot mutated to %q", snapshot)
	}
	if !bytes.Equal(buf.Bytes(), []byte("hello world")) {
		t.Errorf("buffer = %q", buf.Bytes())
	}
}
