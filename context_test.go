package motion

import (
	"errors"
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateLaunching, "launching"},
		{StateDecoding, "decoding"},
		{StateReady, "ready"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{StateCompleted, "completed"},
		{StateFailed, "failed"},
		{StateStopping, "stopping"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		wantErr bool
	}{
		{"data only", Source{Data: []byte("x")}, false},
		{"path only", Source{Path: "a.json"}, false},
		{"empty", Source{}, true},
		{"both", Source{Data: []byte("x"), Path: "a.json"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if tt.wantErr && !errors.Is(err, ErrBadConfig) {
				t.Errorf("Validate = %v, want ErrBadConfig", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
		})
	}
}

func TestBufferSize(t *testing.T) {
	cfg := ContextConfig{Width: 320, Height: 240}
	if got, want := cfg.bufferSize(), 320*240*4; got != want {
		t.Errorf("bufferSize = %d, want %d", got, want)
	}
}

func TestCaptureBindingOnce(t *testing.T) {
	c := &Context{}
	first := AnimationBinding{
		Apply:  func(any, int) {},
		Params: AnimationParams{EndFrame: 10, Duration: time.Second},
	}
	c.captureBinding(first)
	if !c.Decoded() {
		t.Fatal("not decoded after capture")
	}

	// A second capture must not replace the first.
	c.captureBinding(AnimationBinding{Params: AnimationParams{EndFrame: 99}})
	b, ok := c.Binding()
	if !ok {
		t.Fatal("binding lost")
	}
	if b.Params.EndFrame != 10 {
		t.Errorf("EndFrame = %d, want 10", b.Params.EndFrame)
	}
}

func TestSetStateSuppressedAfterStop(t *testing.T) {
	c := &Context{state: StatePlaying}
	c.stop.Store(true)

	c.setState(StateCompleted)
	if got := c.State(); got != StatePlaying {
		t.Errorf("state = %v, want playing (teardown owns the state)", got)
	}
	c.setPaused(time.Now())
	if got := c.State(); got != StatePlaying {
		t.Errorf("state = %v after setPaused, want playing", got)
	}
	if _, ok := c.PausedSince(); ok {
		t.Error("pausedSince recorded after stop")
	}
}

func TestContextIDsUnique(t *testing.T) {
	seen := make(map[ContextID]bool)
	for i := 0; i < 100; i++ {
		id := newContextID()
		if seen[id] {
			t.Fatalf("duplicate ContextID %d", id)
		}
		seen[id] = true
	}
}
