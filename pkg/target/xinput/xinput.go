// Package xinput is a gamepad state module used as the default interception
// target. It exposes XInputGetState through an in-process module so host code
// calls it the same way it would call the real library export.
package xinput

import (
	"errors"
	"fmt"
	"sync"

	"github.com/slimtoolkit/hooksensor/pkg/hook"
	"github.com/slimtoolkit/hooksensor/pkg/hook/inproc"
)

const (
	ModuleName     = "xinput1_3.dll"
	ExportGetState = "XInputGetState"
)

// MaxUsers is the number of gamepad slots.
const MaxUsers = 4

// XInputGetState return codes
const (
	ErrorSuccess            = 0
	ErrorBadArguments       = 160
	ErrorDeviceNotConnected = 1167
)

// Button flags
const (
	GamepadDPadUp        uint16 = 0x0001
	GamepadDPadDown      uint16 = 0x0002
	GamepadDPadLeft      uint16 = 0x0004
	GamepadDPadRight     uint16 = 0x0008
	GamepadStart         uint16 = 0x0010
	GamepadBack          uint16 = 0x0020
	GamepadLeftThumb     uint16 = 0x0040
	GamepadRightThumb    uint16 = 0x0080
	GamepadLeftShoulder  uint16 = 0x0100
	GamepadRightShoulder uint16 = 0x0200
	GamepadA             uint16 = 0x1000
	GamepadB             uint16 = 0x2000
	GamepadX             uint16 = 0x4000
	GamepadY             uint16 = 0x8000
)

var (
	ErrBadUserIndex = errors.New("bad user index")
	ErrBadArgs      = errors.New("bad XInputGetState arguments")
)

// Target is the hook target for XInputGetState.
var Target = hook.Target{Module: ModuleName, Export: ExportGetState}

type Gamepad struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

// IsButtonPressed is true if any of the flags are set.
func (g *Gamepad) IsButtonPressed(flags uint16) bool {
	return g.Buttons&flags != 0
}

// IsButtonPresent is true if all of the flags are set.
func (g *Gamepad) IsButtonPresent(flags uint16) bool {
	return g.Buttons&flags == flags
}

func (g *Gamepad) Copy(src Gamepad) {
	*g = src
}

type State struct {
	PacketNumber uint32
	Gamepad      Gamepad
}

func (s *State) Copy(src State) {
	s.PacketNumber = src.PacketNumber
	s.Gamepad.Copy(src.Gamepad)
}

// Devices holds the connected gamepads behind the export.
type Devices struct {
	mu   sync.RWMutex
	pads [MaxUsers]*State
}

func NewDevices() *Devices {
	return &Devices{}
}

func (d *Devices) Connect(user int) error {
	if user < 0 || user >= MaxUsers {
		return ErrBadUserIndex
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pads[user] == nil {
		d.pads[user] = &State{}
	}

	return nil
}

func (d *Devices) Disconnect(user int) {
	if user < 0 || user >= MaxUsers {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pads[user] = nil
}

// Update replaces the pad input and bumps the packet number.
func (d *Devices) Update(user int, pad Gamepad) error {
	if user < 0 || user >= MaxUsers {
		return ErrBadUserIndex
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	state := d.pads[user]
	if state == nil {
		return fmt.Errorf("user %d: device not connected", user)
	}

	state.PacketNumber++
	state.Gamepad.Copy(pad)
	return nil
}

// GetState is the export body: (userIndex int, state *State) -> int.
func (d *Devices) GetState(args ...any) any {
	user, state, err := getStateArgs(args...)
	if err != nil || state == nil {
		return ErrorBadArguments
	}

	if user < 0 || user >= MaxUsers {
		return ErrorDeviceNotConnected
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	current := d.pads[user]
	if current == nil {
		return ErrorDeviceNotConnected
	}

	state.Copy(*current)
	return ErrorSuccess
}

func getStateArgs(args ...any) (int, *State, error) {
	if len(args) != 2 {
		return 0, nil, ErrBadArgs
	}

	user, ok := args[0].(int)
	if !ok {
		return 0, nil, ErrBadArgs
	}

	state, ok := args[1].(*State)
	if !ok {
		return 0, nil, ErrBadArgs
	}

	return user, state, nil
}

// Register loads the module into the provider and exports XInputGetState.
func Register(provider *inproc.Provider, devices *Devices) (*inproc.Module, error) {
	m := provider.Load(ModuleName)
	if err := m.Export(ExportGetState, devices.GetState); err != nil {
		return nil, err
	}

	return m, nil
}

// Client is the typed caller side used by host code.
type Client struct {
	getState hook.Func
}

func NewClient(m *inproc.Module) (*Client, error) {
	fn, err := m.Proc(ExportGetState)
	if err != nil {
		return nil, err
	}

	return &Client{getState: fn}, nil
}

func (c *Client) GetState(user int, state *State) int {
	code, _ := c.getState(user, state).(int)
	return code
}

// Describe is the event detail for an XInputGetState call.
func Describe(args ...any) (string, error) {
	if len(args) == 0 {
		return "", ErrBadArgs
	}

	user, ok := args[0].(int)
	if !ok {
		return "", ErrBadArgs
	}

	return fmt.Sprintf("%s call for user (%d)", ExportGetState, user), nil
}

// UserIndex matches calls for the given user.
func UserIndex(index int) func(args ...any) bool {
	return func(args ...any) bool {
		if len(args) == 0 {
			return false
		}

		user, ok := args[0].(int)
		return ok && user == index
	}
}
