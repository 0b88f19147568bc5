// Package flow tracks where a client is in the screen sequence:
// login or signup, mode selection, name entry, then play.
package flow

import (
    "errors"
    "fmt"
)

// ErrInvalidTransition is returned when an event does not apply to the current state.
var ErrInvalidTransition = errors.New("invalid transition")

type State uint8

const (
    Login State = iota
    Signup
    ModeSelect
    NameEntry
    Playing
)

func (s State) String() string {
    switch s {
    case Login:
        return "login"
    case Signup:
        return "signup"
    case ModeSelect:
        return "mode_select"
    case NameEntry:
        return "name_entry"
    case Playing:
        return "playing"
    }
    return fmt.Sprintf("state(%d)", uint8(s))
}

type Event uint8

const (
    ShowSignup Event = iota
    ShowLogin
    SignedUp
    LoggedIn
    ChooseLocal
    ChooseBot
    NamesEntered
    LeaveGame
    Logout
)

func (e Event) String() string {
    switch e {
    case ShowSignup:
        return "show_signup"
    case ShowLogin:
        return "show_login"
    case SignedUp:
        return "signed_up"
    case LoggedIn:
        return "logged_in"
    case ChooseLocal:
        return "choose_local"
    case ChooseBot:
        return "choose_bot"
    case NamesEntered:
        return "names_entered"
    case LeaveGame:
        return "leave_game"
    case Logout:
        return "logout"
    }
    return fmt.Sprintf("event(%d)", uint8(e))
}

type transition struct {
    from State
    on   Event
}

var transitions = map[transition]State{
    {Login, ShowSignup}:       Signup,
    {Login, LoggedIn}:         ModeSelect,
    {Signup, ShowLogin}:       Login,
    {Signup, SignedUp}:        Login,
    {ModeSelect, ChooseLocal}: NameEntry,
    {ModeSelect, ChooseBot}:   NameEntry,
    {ModeSelect, Logout}:      Login,
    {NameEntry, NamesEntered}: Playing,
    {NameEntry, LeaveGame}:    ModeSelect,
    {NameEntry, Logout}:       Login,
    {Playing, LeaveGame}:      ModeSelect,
    {Playing, Logout}:         Login,
}

// Machine is a single client's position in the flow. It is not safe for
// concurrent use.
type Machine struct {
    state State
    mode  Event
}

// New returns a machine in the given state. Clients without accounts start
// at ModeSelect.
func New(start State) *Machine {
    return &Machine{state: start}
}

func (m *Machine) State() State { return m.state }

// Mode returns "local" or "bot" once a mode was chosen, otherwise "".
func (m *Machine) Mode() string {
    switch m.mode {
    case ChooseLocal:
        return "local"
    case ChooseBot:
        return "bot"
    }
    return ""
}

// Can reports whether ev applies to the current state.
func (m *Machine) Can(ev Event) bool {
    _, ok := transitions[transition{m.state, ev}]
    return ok
}

// Fire applies ev. The state is unchanged on error.
func (m *Machine) Fire(ev Event) error {
    next, ok := transitions[transition{m.state, ev}]
    if !ok {
        return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, m.state)
    }
    switch ev {
    case ChooseLocal, ChooseBot:
        m.mode = ev
    case LeaveGame, Logout:
        m.mode = 0
    }
    m.state = next
    return nil
}
