package backend

import (
	"context"
	"testing"

	"goweft/pkg/runtime"
)

func TestAudioCompileProbesSample(t *testing.T) {
	a := NewAudio()
	env := runtime.NewEnv(8, 8)
	if err := a.Compile(context.Background(), mustParse(t, "play(0.5)"), env); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if err := a.Compile(context.Background(), mustParse(t, "play(ghost)"), env); err == nil {
		t.Fatal("Compile should fail when the sample probe fails")
	}
}

func TestPCMStreamFrames(t *testing.T) {
	a := NewAudio()
	env := runtime.NewEnv(8, 8)
	if err := a.Compile(context.Background(), mustParse(t, "play(left: 0.5, right: -0.5)"), env); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	s := &pcmStream{backend: a}
	buf := make([]byte, 16) // four stereo frames
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 16 {
		t.Fatalf("Read returned %d bytes, want 16", n)
	}

	left := int16(buf[0]) | int16(buf[1])<<8
	right := int16(buf[2]) | int16(buf[3])<<8
	if left != 16383 {
		t.Errorf("left sample = %d, want 16383", left)
	}
	if right != -16383 {
		t.Errorf("right sample = %d, want -16383", right)
	}
	if s.n != 4 {
		t.Errorf("stream advanced %d samples, want 4", s.n)
	}
}

func TestPCMStreamSilentWithoutProgram(t *testing.T) {
	s := &pcmStream{backend: NewAudio()}
	buf := []byte{1, 2, 3, 4}
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want silence", i, b)
		}
	}
}
