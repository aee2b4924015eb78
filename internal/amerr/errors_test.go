package amerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Parse.New("bad yaml"), KindParse},
		{IO.New("disk full"), KindIO},
		{NotFound.New("com.x.a"), KindNotFound},
		{AppRunning.New("com.x.a"), KindAppRunning},
		{nil, KindNone},
	}

	for _, c := range cases {
		require.Equal(t, c.want, Classify(c.err))
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "Parse", KindParse.String())
	require.Equal(t, "None", KindNone.String())
}
