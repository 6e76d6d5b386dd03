package bufpool

import (
	"sync"
	"testing"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"small request", 100, SmallSize},
		{"exactly small", SmallSize, SmallSize},
		{"between tiers", SmallSize + 1, LargeSize},
		{"exactly large", LargeSize, LargeSize},
		{"oversized", LargeSize + 1, LargeSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)

			if len(buf) != tt.size {
				t.Errorf("len = %d, want %d", len(buf), tt.size)
			}
			if cap(buf) != tt.wantCap {
				t.Errorf("cap = %d, want %d", cap(buf), tt.wantCap)
			}
		})
	}
}

func TestPutNil(t *testing.T) {
	Put(nil) // must not panic
}

func TestPutForeignBuffer(t *testing.T) {
	// Wrong-capacity buffers are dropped, not pooled.
	Put(make([]byte, 17))

	buf := Get(SmallSize)
	if cap(buf) != SmallSize {
		t.Errorf("pool handed out a foreign buffer with cap %d", cap(buf))
	}
	Put(buf)
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				size := SmallSize
				if n%2 == 0 {
					size = LargeSize
				}
				buf := Get(size)
				buf[0] = byte(j)
				Put(buf)
			}
		}(i)
	}
	wg.Wait()
}
