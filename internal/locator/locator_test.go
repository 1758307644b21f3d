package locator

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNew(t *testing.T) {
	t.Run("rejects empty value", func(t *testing.T) {
		_, err := New(CSS, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalid))
	})

	t.Run("rejects unknown strategy", func(t *testing.T) {
		_, err := New(Strategy(42), "x")
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("Must panics on invalid input", func(t *testing.T) {
		assert.Panics(t, func() { Must(ID, "") })
	})
}

func TestLocator_Equal(t *testing.T) {
	a := ByID("searchInput")
	assert.True(t, a.Equal(ByID("searchInput")))
	assert.False(t, a.Equal(ByName("searchInput")), "strategy must participate in equality")
	assert.False(t, a.Equal(ByID("searchinput")), "values are case sensitive")
	assert.True(t, a == ByID("searchInput"), "locators are comparable values")
}

func TestLocator_String(t *testing.T) {
	tests := []struct {
		loc  Locator
		want string
	}{
		{ByID("firstHeading"), "id=firstHeading"},
		{ByCSS(".mw-search-result-heading a"), "css=.mw-search-result-heading a"},
		{ByName("search"), "name=search"},
		{ByAccessibilityID("Search Wikipedia"), "accessibility-id=Search Wikipedia"},
		{ByClassName("android.widget.ImageButton"), `platform=new UiSelector().className("android.widget.ImageButton")`},
		{Locator{}, "<none>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.loc.String())
	}
}

func TestParse(t *testing.T) {
	t.Run("value may contain separators", func(t *testing.T) {
		l, err := Parse("css=option[lang='de']")
		require.NoError(t, err)
		assert.Equal(t, CSS, l.Strategy())
		assert.Equal(t, "option[lang='de']", l.Value())
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := Parse("xpath=//a")
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("missing prefix", func(t *testing.T) {
		_, err := Parse("searchInput")
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

// Property: the textual form round-trips for every valid locator.
func TestParse_RoundTrip(t *testing.T) {
	strategies := []Strategy{ID, AccessibilityID, CSS, Name, PlatformQuery}
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.SampledFrom(strategies).Draw(rt, "strategy")
		v := rapid.StringN(1, 64, -1).Draw(rt, "value")

		want := Must(s, v)
		got, err := Parse(want.String())
		if err != nil {
			rt.Fatalf("parse %q: %v", want.String(), err)
		}
		if diff := cmp.Diff(want.String(), got.String()); diff != "" || !got.Equal(want) {
			rt.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func FuzzParse(f *testing.F) {
	f.Add([]byte("id=searchInput"))
	f.Add([]byte("css=#toc ul li a"))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		raw, err := c.GetString()
		if err != nil {
			return
		}
		l, err := Parse(raw)
		if err != nil {
			return
		}
		// Anything Parse accepts must render back to an equivalent locator.
		again, err := Parse(l.String())
		if err != nil || !again.Equal(l) {
			t.Fatalf("unstable parse of %q", raw)
		}
	})
}
