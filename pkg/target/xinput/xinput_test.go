package xinput

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimtoolkit/hooksensor/pkg/hook"
	"github.com/slimtoolkit/hooksensor/pkg/hook/inproc"
)

func TestGamepadButtons(t *testing.T) {
	pad := Gamepad{Buttons: GamepadA | GamepadB}

	assert.True(t, pad.IsButtonPressed(GamepadA))
	assert.True(t, pad.IsButtonPressed(GamepadA|GamepadX))
	assert.False(t, pad.IsButtonPressed(GamepadX))

	assert.True(t, pad.IsButtonPresent(GamepadA|GamepadB))
	assert.False(t, pad.IsButtonPresent(GamepadA|GamepadX))
}

func TestStateCopy(t *testing.T) {
	src := State{PacketNumber: 7, Gamepad: Gamepad{Buttons: GamepadY, ThumbLX: -100, RightTrigger: 255}}

	var dst State
	dst.Copy(src)
	assert.Equal(t, src, dst)
}

func TestClient_GetState(t *testing.T) {
	provider := inproc.NewProvider()
	devices := NewDevices()
	m, err := Register(provider, devices)
	require.NoError(t, err)

	client, err := NewClient(m)
	require.NoError(t, err)

	var state State
	assert.Equal(t, ErrorDeviceNotConnected, client.GetState(0, &state))
	assert.Equal(t, ErrorDeviceNotConnected, client.GetState(MaxUsers, &state))
	assert.Equal(t, ErrorBadArguments, client.GetState(0, nil))

	require.NoError(t, devices.Connect(1))
	require.NoError(t, devices.Update(1, Gamepad{Buttons: GamepadStart}))
	assert.Equal(t, ErrorSuccess, client.GetState(1, &state))
	assert.EqualValues(t, 1, state.PacketNumber)
	assert.True(t, state.Gamepad.IsButtonPressed(GamepadStart))

	devices.Disconnect(1)
	assert.Equal(t, ErrorDeviceNotConnected, client.GetState(1, &state))
	assert.Error(t, devices.Update(1, Gamepad{}))
	assert.ErrorIs(t, devices.Connect(-1), ErrBadUserIndex)

	_, err = Register(provider, devices)
	assert.ErrorIs(t, err, inproc.ErrExportExists)
}

func TestTargetResolves(t *testing.T) {
	provider := inproc.NewProvider()
	_, err := Register(provider, NewDevices())
	require.NoError(t, err)

	_, err = provider.Resolve(Target.Module, Target.Export)
	require.NoError(t, err)
	assert.Equal(t, hook.Target{Module: "xinput1_3.dll", Export: "XInputGetState"}, Target)
}

func TestDescribe(t *testing.T) {
	detail, err := Describe(2, &State{})
	require.NoError(t, err)
	assert.Equal(t, "XInputGetState call for user (2)", detail)

	_, err = Describe("x")
	assert.ErrorIs(t, err, ErrBadArgs)
	_, err = Describe()
	assert.ErrorIs(t, err, ErrBadArgs)
}

func TestUserIndex(t *testing.T) {
	match := UserIndex(0)
	assert.True(t, match(0, &State{}))
	assert.False(t, match(1, &State{}))
	assert.False(t, match("0"))
	assert.False(t, match())
}
