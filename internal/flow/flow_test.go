package flow

import (
    "errors"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestAccountPathToPlaying(t *testing.T) {
    m := New(Login)
    steps := []struct {
        ev   Event
        want State
    }{
        {ShowSignup, Signup},
        {SignedUp, Login},
        {LoggedIn, ModeSelect},
        {ChooseBot, NameEntry},
        {NamesEntered, Playing},
    }
    for _, st := range steps {
        require.NoError(t, m.Fire(st.ev), "event %s", st.ev)
        assert.Equal(t, st.want, m.State(), "after %s", st.ev)
    }
    assert.Equal(t, "bot", m.Mode())
}

func TestLeaveAndLogout(t *testing.T) {
    m := New(ModeSelect)
    require.NoError(t, m.Fire(ChooseLocal))
    assert.Equal(t, "local", m.Mode())
    require.NoError(t, m.Fire(NamesEntered))

    require.NoError(t, m.Fire(LeaveGame))
    assert.Equal(t, ModeSelect, m.State())
    assert.Equal(t, "", m.Mode())

    require.NoError(t, m.Fire(Logout))
    assert.Equal(t, Login, m.State())
}

func TestInvalidTransitionKeepsState(t *testing.T) {
    cases := []struct {
        from State
        ev   Event
    }{
        {Login, ChooseBot},
        {Login, NamesEntered},
        {Signup, LoggedIn},
        {ModeSelect, LoggedIn},
        {ModeSelect, NamesEntered},
        {Playing, ChooseLocal},
    }
    for _, tc := range cases {
        m := New(tc.from)
        assert.False(t, m.Can(tc.ev), "%s on %s", tc.ev, tc.from)
        err := m.Fire(tc.ev)
        assert.True(t, errors.Is(err, ErrInvalidTransition), "%s on %s: %v", tc.ev, tc.from, err)
        assert.Equal(t, tc.from, m.State())
    }
}

func TestEveryStateIsReachable(t *testing.T) {
    reached := map[State]bool{Login: true}
    for changed := true; changed; {
        changed = false
        for tr, next := range transitions {
            if reached[tr.from] && !reached[next] {
                reached[next] = true
                changed = true
            }
        }
    }
    for _, s := range []State{Login, Signup, ModeSelect, NameEntry, Playing} {
        assert.True(t, reached[s], "state %s unreachable", s)
    }
}

func TestStrings(t *testing.T) {
    assert.Equal(t, "mode_select", ModeSelect.String())
    assert.Equal(t, "names_entered", NamesEntered.String())
    assert.Equal(t, "state(42)", State(42).String())
}
