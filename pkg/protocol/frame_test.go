package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

// receive runs the full client-side codec path against a wire image.
func receive(t *testing.T, wire []byte) (FileHeader, []byte, error) {
	t.Helper()
	r := NewReader(bytes.NewReader(wire))

	sizeLine, err := r.ReadLine()
	if err != nil {
		return FileHeader{}, nil, err
	}
	size, err := ParseSizeLine(sizeLine)
	if err != nil {
		return FileHeader{}, nil, err
	}
	header, err := ReadFileHeader(r, size)
	if err != nil {
		return FileHeader{}, nil, err
	}

	var payload bytes.Buffer
	_, err = CopyPayload(&payload, r, size)
	return header, payload.Bytes(), err
}

func TestTransferRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 100, transferChunk - 1, transferChunk, transferChunk + 1, 3*transferChunk + 17}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			content := make([]byte, size)
			for i := range content {
				content[i] = byte(i % 251)
			}

			var wire bytes.Buffer
			if err := WriteFile(&wire, "blob.bin", int64(size), bytes.NewReader(content)); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			header, payload, err := receive(t, wire.Bytes())
			if err != nil {
				t.Fatalf("receive error = %v", err)
			}
			if header.Name != "blob.bin" || header.Size != int64(size) {
				t.Errorf("header = %+v", header)
			}
			if !bytes.Equal(payload, content) {
				t.Errorf("payload differs: got %d bytes, want %d", len(payload), size)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	t.Run("header layout", func(t *testing.T) {
		var wire bytes.Buffer
		if err := WriteFile(&wire, "notes.txt", 5, strings.NewReader("hello")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		want := "FILESIZE 5\nFILENAME notes.txt\n\nhello"
		if wire.String() != want {
			t.Errorf("wire = %q, want %q", wire.String(), want)
		}
	})

	t.Run("negative size", func(t *testing.T) {
		var wire bytes.Buffer
		if err := WriteFile(&wire, "x", -1, strings.NewReader("")); err == nil {
			t.Error("WriteFile() with negative size: expected error")
		}
		if wire.Len() != 0 {
			t.Errorf("nothing should reach the wire, got %q", wire.String())
		}
	})

	t.Run("source shorter than declared", func(t *testing.T) {
		var wire bytes.Buffer
		err := WriteFile(&wire, "short", 10, strings.NewReader("abc"))
		if err == nil {
			t.Error("WriteFile() with short source: expected error")
		}
	})
}

func TestParseSizeLine(t *testing.T) {
	tests := []struct {
		line    string
		want    int64
		wantErr bool
	}{
		{"FILESIZE 0", 0, false},
		{"FILESIZE 1234", 1234, false},
		{"FILESIZE  42", 42, false}, // tolerate extra whitespace
		{"FILESIZE -5", 0, true},
		{"FILESIZE abc", 0, true},
		{"FILESIZE ", 0, true},
		{"SIZE 10", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSizeLine(tt.line)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSizeLine(%q): expected error", tt.line)
			} else if !IsProtocolError(err) {
				t.Errorf("ParseSizeLine(%q): error %v is not a ProtocolError", tt.line, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseSizeLine(%q) = %d, %v, want %d", tt.line, got, err, tt.want)
		}
	}
}

func TestReadFileHeader(t *testing.T) {
	t.Run("missing blank separator", func(t *testing.T) {
		r := NewReader(strings.NewReader("FILENAME a.txt\nnot-blank\n"))
		_, err := ReadFileHeader(r, 10)
		if !IsProtocolError(err) {
			t.Errorf("error = %v, want ProtocolError", err)
		}
	})

	t.Run("wrong prefix", func(t *testing.T) {
		r := NewReader(strings.NewReader("NAME a.txt\n\n"))
		_, err := ReadFileHeader(r, 10)
		if !IsProtocolError(err) {
			t.Errorf("error = %v, want ProtocolError", err)
		}
	})

	t.Run("empty name", func(t *testing.T) {
		r := NewReader(strings.NewReader("FILENAME \n\n"))
		_, err := ReadFileHeader(r, 10)
		if !IsProtocolError(err) {
			t.Errorf("error = %v, want ProtocolError", err)
		}
	})
}

func TestCopyPayloadTruncation(t *testing.T) {
	// Declared size 100, stream carries 40: the copy must report the short
	// count and the truncation error, never silent success.
	var wire bytes.Buffer
	wire.WriteString("FILESIZE 100\nFILENAME big.bin\n\n")
	wire.Write(bytes.Repeat([]byte{0xAB}, 40))

	r := NewReader(bytes.NewReader(wire.Bytes()))
	sizeLine, _ := r.ReadLine()
	size, err := ParseSizeLine(sizeLine)
	if err != nil {
		t.Fatalf("ParseSizeLine() error = %v", err)
	}
	if _, err := ReadFileHeader(r, size); err != nil {
		t.Fatalf("ReadFileHeader() error = %v", err)
	}

	var out bytes.Buffer
	copied, err := CopyPayload(&out, r, size)
	if !errors.Is(err, ErrTruncatedTransfer) {
		t.Fatalf("CopyPayload() error = %v, want ErrTruncatedTransfer", err)
	}
	if copied != 40 || int64(out.Len()) != copied {
		t.Errorf("CopyPayload() = %d, wrote %d bytes", copied, out.Len())
	}
}

func TestProtocolError(t *testing.T) {
	err := &ProtocolError{Expected: "FILENAME", Line: "garbage"}
	if !strings.Contains(err.Error(), "FILENAME") || !strings.Contains(err.Error(), "garbage") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !IsProtocolError(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsProtocolError() should see through wrapping")
	}
	if IsProtocolError(io.EOF) {
		t.Error("IsProtocolError(io.EOF) = true")
	}
}
