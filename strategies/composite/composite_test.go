package composite

import (
	"errors"
	"testing"

	"quantlab/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed struct {
	name string
	sig  types.Signal
	err  error
}

func (f fixed) Name() string { return f.name }

func (f fixed) GenerateSignal(types.Window) (types.Signal, error) { return f.sig, f.err }

func members(sigs ...types.Signal) []Member {
	out := make([]Member, len(sigs))
	for i, s := range sigs {
		out[i] = Member{Source: fixed{name: string(rune('a' + i)), sig: s}}
	}
	return out
}

const (
	buy  = types.SignalBuy
	hold = types.SignalHold
	sell = types.SignalSell
)

func TestComposite_Methods(t *testing.T) {
	tests := []struct {
		name    string
		method  Method
		members []Member
		want    types.Signal
	}{
		{"majority buy", Majority, members(buy, buy, sell), buy},
		{"majority tie holds", Majority, members(buy, sell), hold},
		{"majority sell", Majority, members(sell, hold, hold), sell},
		{"unanimous agree", Unanimous, members(sell, sell, sell), sell},
		{"unanimous disagree", Unanimous, members(buy, buy, hold), hold},
		{"unanimous single", Unanimous, members(buy), buy},
		{"weighted equal two of three", Weighted, members(buy, buy, sell), hold},
		{"weighted equal all buy", Weighted, members(buy, buy, hold), buy},
		{"weighted heavy member below threshold", Weighted, []Member{
			{Source: fixed{name: "a", sig: sell}, Weight: 2},
			{Source: fixed{name: "b", sig: buy}, Weight: 1},
		}, hold},
		{"weighted threshold reached", Weighted, []Member{
			{Source: fixed{name: "a", sig: sell}, Weight: 4},
			{Source: fixed{name: "b", sig: buy}, Weight: 1},
		}, sell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New("", tt.method, 0, tt.members...)
			require.NoError(t, err)
			got, err := c.GenerateSignal(types.Window{Symbol: "AAPL"})
			if err != nil {
				t.Fatalf("GenerateSignal() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("GenerateSignal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComposite_NormalizesMemberSignals(t *testing.T) {
	c, err := New("", Unanimous, 0, Member{Source: fixed{name: "a", sig: 3}}, Member{Source: fixed{name: "b", sig: 1}})
	require.NoError(t, err)
	got, err := c.GenerateSignal(types.Window{})
	require.NoError(t, err)
	assert.Equal(t, buy, got)
}

func TestComposite_MemberErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	c, err := New("combo", Majority, 0,
		Member{Source: fixed{name: "ok", sig: buy}},
		Member{Source: fixed{name: "bad", err: boom}})
	require.NoError(t, err)

	_, err = c.GenerateSignal(types.Window{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, "combo", c.Name())
}

func TestNew(t *testing.T) {
	_, err := New("", Majority, 0)
	assert.ErrorIs(t, err, ErrNoMembers)

	_, err = New("", Method("average"), 0, members(buy)...)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = New("", Weighted, 0, Member{Source: fixed{name: "a"}, Weight: -1})
	assert.ErrorIs(t, err, ErrBadWeight)

	c, err := New("", Weighted, 0, members(buy, sell)...)
	require.NoError(t, err)
	assert.Equal(t, "weighted(a,b)", c.Name())
}
