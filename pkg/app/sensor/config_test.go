package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slimtoolkit/hooksensor/pkg/hook"
	"github.com/slimtoolkit/hooksensor/pkg/target/xinput"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig("monitor")

	assert.Equal(t, "monitor", cfg.ChannelName)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, 1000, cfg.BufferCapacity)
	assert.Equal(t, 0, cfg.DelayDiscriminator)
	assert.Zero(t, cfg.InjectedDelay)
	assert.Equal(t, xinput.Target, cfg.Target)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "no channel", cfg: NewConfig(""), want: ErrNoChannel},
		{name: "poll interval", cfg: NewConfig("c", WithPollInterval(0)), want: ErrBadPollInterval},
		{name: "call timeout", cfg: NewConfig("c", WithCallTimeout(-time.Second)), want: ErrBadTimeout},
		{name: "connect timeout", cfg: NewConfig("c", WithConnectTimeout(0)), want: ErrBadTimeout},
		{name: "delay", cfg: NewConfig("c", WithInjectedDelay(-time.Millisecond)), want: ErrBadDelay},
		{name: "capacity", cfg: NewConfig("c", WithBufferCapacity(0)), want: ErrBadCapacity},
		{name: "target", cfg: NewConfig("c", WithTarget(hook.Target{Export: "x"})), want: ErrBadTarget},
		{name: "ok", cfg: NewConfig("c", WithDelayDiscriminator(2), WithInjectedDelay(time.Millisecond))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
